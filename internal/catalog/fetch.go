package catalog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/enetx/http"
	"github.com/klauspost/compress/zstd"

	"github.com/veilproto/htx/internal/xerrors"
)

// Fetcher retrieves catalog wire envelopes from update mirrors over plain
// HTTP/1.1 and HTTP/2, transparently decompressing whichever encoding the
// mirror served.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher with a bounded per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch retrieves and parses the catalog wire envelope at url. If the
// response carries no embedded signature_hex, Fetch also retrieves the
// detached url+".sig" file and attaches it.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Wire, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var w Wire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalidFrame, "catalog", "malformed catalog response", err)
	}

	if w.SignatureHex == "" {
		if sigBody, sigErr := f.get(ctx, url+".sig"); sigErr == nil {
			w.SignatureHex = string(sigBody)
		}
	}
	return &w, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "catalog", "build request failed", err)
	}
	req.Header.Set("Accept-Encoding", "br, gzip, zstd")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "catalog", "mirror fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(xerrors.KindIO, "catalog", "mirror returned non-200 status")
	}

	reader, err := decompressingReader(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	if closer, ok := reader.(io.Closer); ok && reader != resp.Body {
		defer closer.Close()
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, "catalog", "read mirror body failed", err)
	}
	return data, nil
}

func decompressingReader(encoding string, body io.Reader) (io.Reader, error) {
	switch encoding {
	case "br":
		return brotli.NewReader(body), nil
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindIO, "catalog", "gzip init failed", err)
		}
		return r, nil
	case "zstd":
		r, err := zstd.NewReader(body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindIO, "catalog", "zstd init failed", err)
		}
		return r, nil
	default:
		return body, nil
	}
}
