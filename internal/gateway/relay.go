package gateway

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RelayChunkSize bounds the memory a single download holds at once.
const RelayChunkSize = 32 << 10

// Relay copies src to dst chunk by chunk, flushing after every write when dst
// supports it, so a download is never materialised in memory.
func Relay(dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, RelayChunkSize)

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// HostAllowed reports whether rawURL is an http(s) URL whose host equals or
// is a subdomain of one of suffixes. An empty list allows any host.
func HostAllowed(rawURL string, suffixes []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Hostname() == "" {
		return false
	}
	if len(suffixes) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
		if s == "" {
			continue
		}
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}
