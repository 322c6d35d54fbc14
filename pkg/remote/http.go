package remote

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/goesplan/internal/utils"
)

// DefaultHTTPEndpoint is the virtual-hosted bucket URL template.
const DefaultHTTPEndpoint = "https://%s.s3.amazonaws.com"

// HTTP lists and fetches over plain HTTPS using the public bucket REST
// interface, retrying transient failures.
type HTTP struct {
	endpoint string
	client   *retryablehttp.Client
}

// NewHTTP creates an HTTP backend. endpoint is a URL template with one %s
// for the bucket name, or a plain base URL to which "/<bucket>" is appended.
func NewHTTP(endpoint string, retryMax int, timeout time.Duration) *HTTP {
	if endpoint == "" {
		endpoint = DefaultHTTPEndpoint
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = utils.RetryLogger{L: utils.Log}
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return &HTTP{endpoint: endpoint, client: client}
}

func (c *HTTP) Name() string { return BackendHTTP }

func (c *HTTP) bucketURL(bucket string) string {
	if strings.Contains(c.endpoint, "%s") {
		return fmt.Sprintf(c.endpoint, bucket)
	}
	return strings.TrimRight(c.endpoint, "/") + "/" + bucket
}

type listBucketResult struct {
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string    `xml:"Key"`
		Size         int64     `xml:"Size"`
		LastModified time.Time `xml:"LastModified"`
	} `xml:"Contents"`
}

func (c *HTTP) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var out []Object
	token := ""
	for {
		q := url.Values{}
		q.Set("list-type", "2")
		q.Set("prefix", prefix)
		if token != "" {
			q.Set("continuation-token", token)
		}
		body, err := c.get(ctx, c.bucketURL(bucket)+"/?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		var res listBucketResult
		err = xml.NewDecoder(body).Decode(&res)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: bad listing: %w", bucket, prefix, err)
		}
		for _, o := range res.Contents {
			out = append(out, Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
		}
		if !res.IsTruncated || res.NextContinuationToken == "" {
			return out, nil
		}
		token = res.NextContinuationToken
	}
}

func (c *HTTP) Fetch(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	body, err := c.get(ctx, c.bucketURL(bucket)+"/"+key)
	if err != nil {
		return 0, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer body.Close()
	return io.Copy(w, body)
}

func (c *HTTP) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "goesplan")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
