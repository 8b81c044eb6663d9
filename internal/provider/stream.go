package provider

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
)

// ServeCachedFile serves a fully cached media file with byte-range
// support, so players can seek.
func ServeCachedFile(w http.ResponseWriter, r *http.Request, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, "", info.ModTime(), f)
	return nil
}

// PipeProcess streams a live conversion to the client. The output
// length is unknown, so ranges are refused up front and the process is
// killed when the client goes away.
func PipeProcess(w http.ResponseWriter, r *http.Request, proc *ffmpeg.Process, contentType string, log *slog.Logger) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "none")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.Context().Done():
			proc.Kill()
		case <-done:
		}
	}()

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 64*1024)
	for {
		n, readErr := proc.Stdout().Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				proc.Kill()
				log.Debug("client disconnected mid-stream", "error", writeErr)
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			proc.Kill()
			return readErr
		}
	}

	if err := proc.Wait(); err != nil {
		// headers are already sent; log instead of failing the response
		log.Warn("stream process exited with error", "error", err)
	}
	return nil
}

// forwarded headers for pass-through proxying
var proxyResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
}

// ProxyStream relays an upstream media URL to the client, mirroring
// range semantics so seeking works without caching the file locally.
func ProxyStream(w http.ResponseWriter, r *http.Request, client *http.Client, upstreamURL string) error {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		return err
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, h := range proxyResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, err = io.Copy(w, resp.Body)
	return err
}
