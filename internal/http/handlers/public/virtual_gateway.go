package public

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/http/handlers/shared"
	"github.com/gateflow/internal/http/response"
	"github.com/gateflow/internal/payment/virtual"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	virtualPageName     = "virtual_gateway"
	virtualRedirectName = "virtual_redirect"
)

const virtualPageHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Virtual Gateway</title></head>
<body>
<h2>Virtual Gateway</h2>
<p>Tracking number: {{.TrackingNumber}}</p>
<p>Amount: {{.Amount}}</p>
<form method="post" action="{{.Action}}" style="display:inline">
<input type="hidden" name="CommandType" value="pay">
<input type="hidden" name="trackingNumber" value="{{.TrackingNumber}}">
<input type="hidden" name="amount" value="{{.Amount}}">
<input type="hidden" name="redirectUrl" value="{{.RedirectURL}}">
<button type="submit">Pay</button>
</form>
<form method="post" action="{{.Action}}" style="display:inline">
<input type="hidden" name="CommandType" value="cancel">
<input type="hidden" name="trackingNumber" value="{{.TrackingNumber}}">
<input type="hidden" name="amount" value="{{.Amount}}">
<input type="hidden" name="redirectUrl" value="{{.RedirectURL}}">
<button type="submit">Cancel</button>
</form>
</body>
</html>`

const virtualRedirectHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $name, $value := .Params}}<input type="hidden" name="{{$name}}" value="{{$value}}">
{{end}}<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>`

// VirtualGatewayTemplate 虚拟网关页面模板，由路由通过 SetHTMLTemplate 注册
func VirtualGatewayTemplate() *template.Template {
	tmpl := template.Must(template.New(virtualPageName).Parse(virtualPageHTML))
	return template.Must(tmpl.New(virtualRedirectName).Parse(virtualRedirectHTML))
}

type virtualPageView struct {
	Action         string
	TrackingNumber string
	Amount         string
	RedirectURL    string
}

type virtualRedirectView struct {
	Action string
	Params map[string]string
}

// VirtualGateway 虚拟网关的模拟银行页面
func (h *Handler) VirtualGateway(c *gin.Context) {
	cmd, err := virtual.ParsePageCommand(c.Request.FormValue)
	if err != nil {
		shared.RespondError(c, response.CodeBadRequest, err.Error(), nil)
		return
	}
	if !h.sameOriginRedirect(cmd.RedirectURL) {
		shared.RespondError(c, response.CodeBadRequest, "redirectUrl must point to this service", nil)
		return
	}
	log := shared.RequestLog(c).With(
		"tracking_number", cmd.TrackingNumber,
		"command", cmd.CommandType,
	)

	if cmd.CommandType == constants.VirtualCommandRequest {
		log.Infow("virtual_gateway_page_rendered")
		c.HTML(http.StatusOK, virtualPageName, virtualPageView{
			Action:         c.Request.URL.Path,
			TrackingNumber: strconv.FormatInt(cmd.TrackingNumber, 10),
			Amount:         cmd.Amount,
			RedirectURL:    cmd.RedirectURL,
		})
		return
	}

	transactionCode := ""
	if cmd.CommandType == constants.VirtualCommandPay {
		transactionCode = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	log.Infow("virtual_gateway_payer_decided", "transaction_code", transactionCode)
	c.HTML(http.StatusOK, virtualRedirectName, virtualRedirectView{
		Action: cmd.RedirectURL,
		Params: cmd.CallbackParams(transactionCode),
	})
}

// sameOriginRedirect 回跳地址必须与 server.public_base_url 同源
func (h *Handler) sameOriginRedirect(raw string) bool {
	if h.Container == nil || h.Config == nil {
		return false
	}
	base, err := url.Parse(strings.TrimSpace(h.Config.Server.PublicBaseURL))
	if err != nil || base.Host == "" {
		return false
	}
	target, err := url.Parse(raw)
	if err != nil || target.User != nil {
		return false
	}
	return strings.EqualFold(target.Scheme, base.Scheme) && strings.EqualFold(target.Host, base.Host)
}
