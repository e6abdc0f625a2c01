package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/converter"
	"github.com/ginjaninja78/erp-coretax-converter/internal/coretax"
)

var fixedNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	conv := converter.New(nil, nil, converter.Options{
		Logger: quiet,
		Now:    func() time.Time { return fixedNow },
	})

	s := NewServer(config.DefaultConfig().Server, conv)
	s.now = func() time.Time { return fixedNow }
	return s
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/convert/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func xlsxUpload(t *testing.T, grid [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range grid {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, "2025-03-15T09:30:00Z", body["timestamp"])
}

func TestConvertXLSX(t *testing.T) {
	upload := xlsxUpload(t, [][]any{
		{"CustomerCode", "Qty", "PriceAfterTax", "InvoiceAmount"},
		{"C1", 2, 1120, 0},
		{"C2", 0, "nan", 0},
	})

	rec := serve(newTestServer(t), uploadRequest(t, "sales.xlsx", upload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=CoreTax_Import_20250315_093000.xlsx", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get("X-Rows-Total"))
	assert.Equal(t, "0", rec.Header().Get("X-Rows-Recovered"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, coretax.SheetOrder, f.GetSheetList())
	rows, err := f.GetRows(coretax.SheetDetailFaktur)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1000", rows[1][8])
}

func TestConvertCSV(t *testing.T) {
	rec := serve(newTestServer(t), uploadRequest(t, "sales.csv", []byte("Qty;InvoiceAmount\n1;560\n")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Rows-Total"))
}

func TestConvertRejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		wantMsg  string
	}{
		{name: "wrong extension", filename: "sales.pdf", content: []byte("%PDF"), wantMsg: "please upload"},
		{name: "legacy xls", filename: "sales.xls", content: []byte("binary"), wantMsg: "please upload"},
		{name: "corrupt workbook", filename: "sales.xlsx", content: []byte("not a zip"), wantMsg: "failed to read table"},
		{name: "header only", filename: "sales.csv", content: []byte("Qty,InvoiceAmount\n"), wantMsg: "no valid data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestServer(t), uploadRequest(t, tt.filename, tt.content))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, errorMessage(t, rec), tt.wantMsg)
		})
	}
}

func TestConvertWithoutFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("sheet", "Sales"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/convert/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(newTestServer(t), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no file provided", errorMessage(t, rec))
}

func TestConvertNotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/convert/", bytes.NewBufferString("plain"))
	rec := serve(newTestServer(t), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file too large or invalid form", errorMessage(t, rec))
}

func TestConvertMethodNotAllowed(t *testing.T) {
	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/convert/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShutdownBeforeStart(t *testing.T) {
	assert.NoError(t, newTestServer(t).Shutdown(t.Context()))
}

func TestServeAndShutdown(t *testing.T) {
	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(t.Context()))
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, http.ErrServerClosed), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestShutdownRacingStart(t *testing.T) {
	s := newTestServer(t)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start("127.0.0.1:0") }()
	require.NoError(t, s.Shutdown(t.Context()))

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, http.ErrServerClosed), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}

func TestStartInvalidAddr(t *testing.T) {
	err := newTestServer(t).Start("127.0.0.1:-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
