package public

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gateflow/internal/config"
	"github.com/gateflow/internal/provider"

	"github.com/gin-gonic/gin"
)

func serveVirtualGateway(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = "http://shop.test"
	r := gin.New()
	r.SetHTMLTemplate(VirtualGatewayTemplate())
	h := &Handler{Container: &provider.Container{Config: cfg}}
	r.POST("/virtual-gateway", h.VirtualGateway)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/virtual-gateway", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestVirtualGatewayRendersBankPage(t *testing.T) {
	w := serveVirtualGateway(t, url.Values{
		"CommandType":    {"request"},
		"trackingNumber": {"123"},
		"amount":         {"10000.00"},
		"redirectUrl":    {"http://shop.test/callback?paymentToken=abc"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `value="pay"`) || !strings.Contains(body, `value="cancel"`) {
		t.Fatalf("page should offer pay and cancel, got %s", body)
	}
	if !strings.Contains(body, "10000.00") {
		t.Fatalf("page should show amount, got %s", body)
	}
}

func TestVirtualGatewayPayPostsBackWithTransactionCode(t *testing.T) {
	w := serveVirtualGateway(t, url.Values{
		"CommandType":    {"pay"},
		"trackingNumber": {"123"},
		"amount":         {"10000.00"},
		"redirectUrl":    {"http://shop.test/callback?paymentToken=abc"},
	})
	body := w.Body.String()
	if !strings.Contains(body, `name="result" value="true"`) {
		t.Fatalf("pay should post result=true, got %s", body)
	}
	if !strings.Contains(body, `name="TransactionCode"`) {
		t.Fatalf("pay should post a transaction code, got %s", body)
	}
	if !strings.Contains(body, `action="http://shop.test/callback?paymentToken=abc"`) {
		t.Fatalf("form should target the redirect url, got %s", body)
	}
}

func TestVirtualGatewayCancelPostsFailure(t *testing.T) {
	w := serveVirtualGateway(t, url.Values{
		"CommandType":    {"cancel"},
		"trackingNumber": {"123"},
		"redirectUrl":    {"http://shop.test/callback"},
	})
	body := w.Body.String()
	if !strings.Contains(body, `name="result" value="false"`) {
		t.Fatalf("cancel should post result=false, got %s", body)
	}
	if strings.Contains(body, `name="TransactionCode"`) {
		t.Fatalf("cancel should not post a transaction code, got %s", body)
	}
}

func TestVirtualGatewayRejectsInvalidCommand(t *testing.T) {
	w := serveVirtualGateway(t, url.Values{
		"CommandType":    {"steal"},
		"trackingNumber": {"123"},
		"redirectUrl":    {"http://shop.test/callback"},
	})
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status_code want 400 got %d", resp.StatusCode)
	}
}

func TestVirtualGatewayRejectsForeignRedirect(t *testing.T) {
	for _, redirect := range []string{
		"http://evil.test/callback?paymentToken=abc",
		"https://shop.test/callback",
		"http://user@shop.test/callback",
		"/callback",
	} {
		w := serveVirtualGateway(t, url.Values{
			"CommandType":    {"pay"},
			"trackingNumber": {"123"},
			"amount":         {"10000.00"},
			"redirectUrl":    {redirect},
		})
		var resp struct {
			StatusCode int `json:"status_code"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: unmarshal response failed: %v", redirect, err)
		}
		if resp.StatusCode != 400 {
			t.Fatalf("%s: status_code want 400 got %d", redirect, resp.StatusCode)
		}
		if strings.Contains(w.Body.String(), "<form") {
			t.Fatalf("%s: no form should be rendered", redirect)
		}
	}
}

func TestVirtualGatewayRedirectHostIsCaseInsensitive(t *testing.T) {
	w := serveVirtualGateway(t, url.Values{
		"CommandType":    {"cancel"},
		"trackingNumber": {"123"},
		"redirectUrl":    {"http://SHOP.test/callback"},
	})
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("same origin redirect should render html, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestCallbackParamsForLogMasksSignature(t *testing.T) {
	got := callbackParamsForLog(map[string]string{"sign": "abc", "out_trade_no": "123", "signature": "def"})
	if got != "out_trade_no=123&sign=***&signature=***" {
		t.Fatalf("unexpected log value %q", got)
	}
}

func TestHealthWithoutContainer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &Handler{}
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(w.Body.String(), `"queue":"disabled"`) {
		t.Fatalf("queue should be disabled, got %s", w.Body.String())
	}
}
