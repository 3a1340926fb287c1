package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// APIError is an error reported by the Web API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error returns the error message.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Dataverse request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("Dataverse request failed with status %d: %s", e.StatusCode, e.Message)
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// query is an ordered set of OData system query options.
type query [][2]string

func (q query) encode() string {
	parts := make([]string, 0, len(q))
	for _, kv := range q {
		parts = append(parts, kv[0]+"="+url.PathEscape(kv[1]))
	}
	return strings.Join(parts, "&")
}

// webAPI issues authenticated OData requests against one organization.
type webAPI struct {
	baseURL string
	client  *http.Client
}

// get decodes the response to path into out.
func (w *webAPI) get(ctx context.Context, path string, q query, out interface{}) error {
	target := w.baseURL + path
	if len(q) > 0 {
		target += "?" + q.encode()
	}
	return w.getURL(ctx, target, out)
}

func (w *webAPI) getURL(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("Prefer", `odata.include-annotations="*"`)

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding response of GET %s", target)
	}
	return nil
}

// list collects every page of a collection.
func list[T any](ctx context.Context, w *webAPI, path string, q query) ([]T, error) {
	var page struct {
		Value    []T    `json:"value"`
		NextLink string `json:"@odata.nextLink"`
	}
	if err := w.get(ctx, path, q, &page); err != nil {
		return nil, err
	}

	items := page.Value
	for page.NextLink != "" {
		next := page.NextLink
		page.Value, page.NextLink = nil, ""
		if err := w.getURL(ctx, next, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
	}
	return items, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// entityPath addresses an entity definition by logical name.
func entityPath(logicalName string) string {
	return "EntityDefinitions(LogicalName='" + strings.ReplaceAll(logicalName, "'", "''") + "')"
}
