package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/serial-control/internal/errors"
	"github.com/wfunc/serial-control/internal/hardware"
)

// fakeDevice 记录收到的命令，可注入发送错误
type fakeDevice struct {
	mu   sync.Mutex
	sent []hardware.Command
	err  error
}

func (d *fakeDevice) Send(ctx context.Context, cmd hardware.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, cmd)
	return nil
}

func (d *fakeDevice) Status() *hardware.LinkStatus {
	return &hardware.LinkStatus{Port: "fake", BaudRate: 9600, Connected: true}
}

func (d *fakeDevice) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDevice) commands() []hardware.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hardware.Command(nil), d.sent...)
}

func doGet(t *testing.T, engine *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestControlValidModes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	port := hardware.NewMockPort()
	link, err := hardware.Open(context.Background(), &hardware.SerialConfig{
		Port:         "COM3",
		BaudRate:     9600,
		WriteTimeout: time.Second,
	}, hardware.WithOpener(hardware.MockOpener(port)))
	require.NoError(t, err)
	defer link.Close()

	engine := NewRouter(link, nil).GetEngine()

	for i, mode := range []string{"on", "half", "off"} {
		t.Run(mode, func(t *testing.T) {
			w, resp := doGet(t, engine, "/control/"+mode)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "success", resp["status"])
			assert.Equal(t, mode, resp["mode"])

			writes := port.Writes()
			require.Len(t, writes, i+1, "每个请求恰好写入一次")
			assert.Equal(t, mode+"\n", writes[i])
		})
	}
}

func TestControlInvalidMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	device := &fakeDevice{}
	engine := NewRouter(device, nil).GetEngine()

	for _, mode := range []string{"xyz", "ON", "Half", "on%0A", "toggle"} {
		t.Run(mode, func(t *testing.T) {
			w, resp := doGet(t, engine, "/control/"+mode)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "error", resp["status"])
			assert.Equal(t, "Invalid command", resp["message"])
		})
	}

	assert.Empty(t, device.commands(), "无效命令不应访问串口")
}

func TestControlWriteFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	device := &fakeDevice{err: errors.New("write /dev/ttyACM0: input/output error")}
	engine := NewRouter(device, nil).GetEngine()

	w, resp := doGet(t, engine, "/control/off")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "Failed to send command.", resp["message"])

	// 失败后仍可继续服务
	device.setErr(nil)
	w, resp = doGet(t, engine, "/control/on")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "on", resp["mode"])
	assert.Equal(t, []hardware.Command{hardware.CmdOn}, device.commands())
}

func TestControlLinkErrorsReturn500(t *testing.T) {
	gin.SetMode(gin.TestMode)

	linkErrors := []error{
		apperrors.New(apperrors.ErrSerialPortWrite),
		apperrors.New(apperrors.ErrSerialTimeout),
		apperrors.New(apperrors.ErrDeviceOffline, "serial link closed"),
		apperrors.Wrap(context.Canceled, apperrors.ErrCanceled),
	}

	for _, linkErr := range linkErrors {
		t.Run(linkErr.Error(), func(t *testing.T) {
			engine := NewRouter(&fakeDevice{err: linkErr}, nil).GetEngine()

			w, resp := doGet(t, engine, "/control/half")
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, map[string]interface{}{"status": "error", "message": "Failed to send command."}, resp)
		})
	}
}

func TestControlRepeatedCommands(t *testing.T) {
	gin.SetMode(gin.TestMode)
	device := &fakeDevice{}
	engine := NewRouter(device, nil).GetEngine()

	for i := 0; i < 3; i++ {
		w, _ := doGet(t, engine, "/control/half")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, []hardware.Command{hardware.CmdHalf, hardware.CmdHalf, hardware.CmdHalf}, device.commands())
}

func TestIndexPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	device := &fakeDevice{err: errors.New("device unplugged")}
	engine := NewRouter(device, nil).GetEngine()

	w, _ := doGet(t, engine, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	for _, mode := range []string{"on", "half", "off"} {
		assert.Contains(t, body, `data-mode="`+mode+`"`)
	}
	assert.Empty(t, device.commands())
}

func TestHealthAndDocs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewRouter(&fakeDevice{}, nil).GetEngine()

	w, resp := doGet(t, engine, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	serial, ok := resp["serial"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fake", serial["port"])
	assert.Equal(t, true, serial["connected"])

	w, _ = doGet(t, engine, "/openapi")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/control/{mode}")
}

func TestNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewRouter(&fakeDevice{}, nil).GetEngine()

	w, resp := doGet(t, engine, "/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "error", resp["status"])
}
