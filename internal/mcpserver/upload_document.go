package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	maxDocumentSize = 25 << 20 // 25 MB
	maxRedirects    = 5
)

var (
	extByMIME = map[string]string{
		"text/plain":      ".txt",
		"text/markdown":   ".md",
		"application/pdf": ".pdf",
	}

	unsafeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

	errBlockedAddress = errors.New("blocked address")
)

// fetcher downloads remote documents. Addresses are checked when the
// connection is dialed, so redirects and DNS answers are covered too.
type fetcher struct {
	client        *http.Client
	allowLoopback bool
}

func newFetcher() *fetcher {
	f := &fetcher{}
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			return f.checkIP(net.ParseIP(host))
		},
	}
	f.client = &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{DialContext: dialer.DialContext, Proxy: nil},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return checkScheme(req.URL)
		},
	}
	return f
}

func (f *fetcher) checkIP(ip net.IP) error {
	switch {
	case ip == nil:
		return fmt.Errorf("%w: unparseable", errBlockedAddress)
	case ip.IsLoopback() && !f.allowLoopback:
		return fmt.Errorf("%w: loopback %s", errBlockedAddress, ip)
	case ip.IsLinkLocalUnicast(), ip.IsUnspecified():
		// 169.254.169.254 and friends serve cloud instance metadata.
		return fmt.Errorf("%w: %s", errBlockedAddress, ip)
	}
	return nil
}

func checkScheme(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %q (only http/https)", u.Scheme)
	}
	if u.Hostname() == "metadata.google.internal" {
		return fmt.Errorf("%w: %s", errBlockedAddress, u.Hostname())
	}
	return nil
}

// fetch returns the body and a filename extension guessed from its type.
func (f *fetcher) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if err := checkScheme(u); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, "", fmt.Errorf("document too large: exceeds %d bytes", maxDocumentSize)
	}
	return data, extensionFor(resp.Header.Get("Content-Type"), data), nil
}

// extensionFor maps a declared media type, or one sniffed from data, to a
// file extension. Unknown types get none.
func extensionFor(contentType string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extByMIME[mt]; ok {
			return ext
		}
	}
	if mt, _, err := mime.ParseMediaType(http.DetectContentType(data)); err == nil {
		return extByMIME[mt]
	}
	return ""
}

// decodeDataURI parses data:<mediatype>;base64,<payload>.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: missing comma separator")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
		}
	}
	if len(data) > maxDocumentSize {
		return nil, "", fmt.Errorf("document too large: %d bytes (max %d)", len(data), maxDocumentSize)
	}
	return data, extensionFor(mediaType, data), nil
}

// documentFilename picks the recorded filename: the caller's choice, else
// the URL's last path element, else a fresh UUID with ext.
func documentFilename(requested, rawURL, ext string) string {
	name := requested
	if name == "" && !strings.HasPrefix(rawURL, "data:") {
		if u, err := url.Parse(rawURL); err == nil {
			if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." && base != ".." {
				name = base
			}
		}
	}
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFilenameRe.ReplaceAllString(name, "_")
	if strings.Trim(name, "._") == "" {
		if ext == "" {
			ext = ".bin"
		}
		name = uuid.NewString() + ext
	}
	return name
}

func (s *Server) uploadDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	related, err := parseRelated(req.GetString("related_to", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var ext string
	if strings.HasPrefix(rawURL, "data:") {
		data, ext, err = decodeDataURI(rawURL)
	} else {
		data, ext, err = s.fetcher.fetch(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filename := documentFilename(req.GetString("filename", ""), rawURL, ext)
	detail, err := s.svc.ProcessUpload(ctx, filename, bytes.NewReader(data), related)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
