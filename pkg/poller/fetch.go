package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	telemetryerrors "github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
)

// MaxResponseSize bounds how much of a poll response is read.
const MaxResponseSize = 32 << 20

// Fetch builds a FetchFunc that GETs url and hands the body to decode.
// Non-2xx responses fail with *errors.PollStatus.
func Fetch[T any](client *http.Client, url string, decode func([]byte) (T, error)) FetchFunc[T] {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) (T, error) {
		var zero T

		body, err := get(ctx, client, url)
		if err != nil {
			return zero, err
		}

		result, err := decode(body)
		if err != nil {
			return zero, fmt.Errorf("decoding response from %s: %w", url, err)
		}
		return result, nil
	}
}

// FetchJSON decodes the response body straight into T.
func FetchJSON[T any](client *http.Client, url string) FetchFunc[T] {
	return Fetch(client, url, func(body []byte) (T, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return v, &telemetryerrors.MalformedMessage{MessageName: "poll response", Size: len(body), Err: err}
		}
		return v, nil
	})
}

// FetchBytes returns the raw response body, e.g. an image.
func FetchBytes(client *http.Client, url string) FetchFunc[[]byte] {
	return Fetch(client, url, func(body []byte) ([]byte, error) {
		return body, nil
	})
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &telemetryerrors.PollStatus{Url: url, StatusCode: resp.StatusCode}
	}

	return readLimited(resp.Body, url, MaxResponseSize)
}

// readLimited fails instead of truncating: a cut-off image still has a valid
// header.
func readLimited(r io.Reader, url string, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if int64(len(body)) > limit {
		return nil, &telemetryerrors.ResponseTooLarge{Url: url, Limit: limit}
	}
	return body, nil
}
