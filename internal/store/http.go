package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const maxResponseBytes = 8 << 20

// restClient — JSON поверх net/http для REST-бэкендов (Qdrant, Azure AI Search)
type restClient struct {
	backend string
	http    *http.Client
	headers func(ctx context.Context, req *http.Request) error
}

// do отправляет запрос и возвращает статус и тело; non-2xx не считается ошибкой,
// решение принимает вызывающий.
func (c *restClient) do(ctx context.Context, op, method, url string, in any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, nil, opErr(c.backend, op, OpErrEncode, "encode request", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, opErr(c.backend, op, OpErrTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.headers != nil {
		if err := c.headers(ctx, req); err != nil {
			return 0, nil, opErr(c.backend, op, OpErrTransport, "authorize request", err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, classifyHTTPError(c.backend, op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, opErr(c.backend, op, OpErrDecode, "read response", err)
	}
	return resp.StatusCode, raw, nil
}

// doJSON — do + проверка 2xx + декодирование в out
func (c *restClient) doJSON(ctx context.Context, op, method, url string, in, out any) error {
	status, raw, err := c.do(ctx, op, method, url, in)
	if err != nil {
		return err
	}
	if !ok2xx(status) {
		return statusErr(c.backend, op, status, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(c.backend, op, OpErrDecode, "decode response", err)
	}
	return nil
}

func ok2xx(status int) bool { return status >= 200 && status < 300 }
