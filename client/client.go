package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// DuplicateImageMessage 后端对重复上传返回的消息
const DuplicateImageMessage = "This image has already been uploaded."

// APIError 后端返回的非 2xx 响应
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// Duplicate 是否为重复上传
func (e *APIError) Duplicate() bool {
	return e.Status == http.StatusBadRequest && e.Message == DuplicateImageMessage
}

// IsNotFound 判断错误是否为 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client 分割后端 HTTP 客户端
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	csrfCookie string
	csrfHeader string
	timeout    time.Duration
}

func NewClient(cfg *config.BackendConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Jar: jar},
		csrfCookie: cfg.CSRFCookie,
		csrfHeader: cfg.CSRFHeader,
		timeout:    timeout,
	}, nil
}

// Init 获取 CSRF cookie，写操作之前调用
func (c *Client) Init(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "csrf-token/", nil, nil, "")
	return err
}

// UploadImage 上传图片
func (c *Client) UploadImage(ctx context.Context, name, contentType string, data []byte) (*model.UploadResult, error) {
	body, ct, err := multipartBody(func(w *multipart.Writer) error {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
		return w.WriteField("name", name)
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "upload/", nil, body, ct)
	if err != nil {
		return nil, err
	}

	var result model.UploadResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &result, nil
}

// ListImages 获取后端全部图片
func (c *Client) ListImages(ctx context.Context) ([]model.RemoteImage, error) {
	resp, err := c.do(ctx, http.MethodGet, "images/", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var images []model.RemoteImage
	if err := json.Unmarshal(resp, &images); err != nil {
		return nil, fmt.Errorf("failed to decode image list: %w", err)
	}
	return images, nil
}

// LastSelected 获取上次选中的图片名，没有时返回空字符串
func (c *Client) LastSelected(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "select-image/", nil, nil, "")
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	var out struct {
		ImageName string `json:"imageName"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("failed to decode last selected image: %w", err)
	}
	return out.ImageName, nil
}

// SelectImage 通知后端当前选中的图片
func (c *Client) SelectImage(ctx context.Context, hash string) error {
	payload, err := json.Marshal(map[string]string{"imageHash": hash})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "select-image/", nil, bytes.NewReader(payload), "application/json")
	return err
}

// DeleteImage 删除图片
func (c *Client) DeleteImage(ctx context.Context, hash string) error {
	_, err := c.do(ctx, http.MethodDelete, "delete/"+url.PathEscape(hash)+"/", nil, nil, "")
	return err
}

// ListWords 获取图片的标注词
func (c *Client) ListWords(ctx context.Context, hash string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "word/", url.Values{"image_hash": {hash}}, nil, "")
	if err != nil {
		return nil, err
	}

	var list model.WordList
	if err := json.Unmarshal(resp, &list); err != nil {
		return nil, fmt.Errorf("failed to decode word list: %w", err)
	}

	words := make([]string, 0, len(list.Words))
	for _, w := range list.Words {
		words = append(words, w.Word)
	}
	return words, nil
}

// AddWord 添加标注词
func (c *Client) AddWord(ctx context.Context, hash, word string) error {
	body, ct, err := multipartBody(func(w *multipart.Writer) error {
		if err := w.WriteField("associated_image", hash); err != nil {
			return err
		}
		return w.WriteField("word", word)
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "word/", nil, body, ct)
	return err
}

// EditWord 重命名标注词
func (c *Client) EditWord(ctx context.Context, hash, oldWord, newWord string) error {
	query := url.Values{
		"associated_image": {hash},
		"old_word":         {oldWord},
		"new_word":         {newWord},
	}
	_, err := c.do(ctx, http.MethodPut, "word/", query, nil, "")
	return err
}

// DeleteWord 删除标注词，后端以 200 确认
func (c *Client) DeleteWord(ctx context.Context, hash, word string) error {
	query := url.Values{"associated_image": {hash}, "word": {word}}
	return c.expectStatus(ctx, http.MethodDelete, "word/", query, http.StatusOK)
}

// RequestSegmentation 发起自动分割
func (c *Client) RequestSegmentation(ctx context.Context, req model.SegmentRequest) error {
	inclusion, err := json.Marshal(nonNil(req.Prompts.Inclusion))
	if err != nil {
		return err
	}
	exclusion, err := json.Marshal(nonNil(req.Prompts.Exclusion))
	if err != nil {
		return err
	}
	boxes, err := json.Marshal(req.BoxQuads())
	if err != nil {
		return err
	}

	fields := [][2]string{
		{"file_hash", req.FileHash},
		{"inclusion_points", string(inclusion)},
		{"exclusion_points", string(exclusion)},
		{"bounding_box", string(boxes)},
		{"word", req.Word},
		{"model", fmt.Sprint(req.Settings.Model)},
		{"contour_fidelity", fmt.Sprint(req.Settings.ContourFidelity)},
	}
	body, ct, err := multipartBody(func(w *multipart.Writer) error {
		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	_, err = c.do(ctx, http.MethodPost, "sam2/", nil, body, ct)
	return err
}

// FetchMasks 按图片和标注词获取掩码
func (c *Client) FetchMasks(ctx context.Context, hash, word string) ([]model.MaskRecord, error) {
	path := fmt.Sprintf("api/masks/by-image/%s/by-word/%s/", url.PathEscape(hash), url.PathEscape(word))
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, err
	}

	var masks []model.MaskRecord
	if err := json.Unmarshal(resp, &masks); err != nil {
		return nil, fmt.Errorf("failed to decode masks: %w", err)
	}
	return masks, nil
}

// DeleteMask 删除掩码，后端以 204 确认
func (c *Client) DeleteMask(ctx context.Context, hash, word string) error {
	query := url.Values{"image_hash": {hash}, "word": {word}}
	return c.expectStatus(ctx, http.MethodDelete, "delete-mask/", query, http.StatusNoContent)
}

// FetchContours 获取掩码轮廓文档
func (c *Client) FetchContours(ctx context.Context, hash, word string) (*model.ContourDocument, error) {
	path := fmt.Sprintf("api/masks/contours/%s/%s/", url.PathEscape(hash), url.PathEscape(word))
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, err
	}

	var doc model.ContourDocument
	if err := json.Unmarshal(resp, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode contours: %w", err)
	}
	return &doc, nil
}

// FetchRaster 下载掩码 PNG，相对地址按 baseURL 解析
func (c *Client) FetchRaster(ctx context.Context, rawURL string) ([]byte, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mask url: %w", err)
	}
	return c.send(ctx, http.MethodGet, c.baseURL.ResolveReference(ref).String(), nil, "", 0)
}

func (c *Client) expectStatus(ctx context.Context, method, path string, query url.Values, want int) error {
	_, err := c.send(ctx, method, c.endpoint(path, query), nil, "", want)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	return c.send(ctx, method, c.endpoint(path, query), body, contentType, 0)
}

// send 发送请求；want 为 0 时接受任意 2xx
func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType string, want int) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet {
		if token := c.csrfToken(); token != "" {
			req.Header.Set(c.csrfHeader, token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	utils.Logger.Debug("backend request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("cost", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 || (want != 0 && resp.StatusCode != want) {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) csrfToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == c.csrfCookie {
			return cookie.Value
		}
	}
	return ""
}

func multipartBody(write func(*multipart.Writer) error) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := write(w); err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// errorMessage 提取后端 message/error/detail 字段，否则返回原文
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Detail != "":
			return payload.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
