package virtual

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gateflow/internal/constants"
)

// PageCommand 模拟银行页面提交的命令
type PageCommand struct {
	CommandType    string
	TrackingNumber int64
	Amount         string
	RedirectURL    string
}

// ParsePageCommand 解析模拟银行页面表单
func ParsePageCommand(get func(string) string) (PageCommand, error) {
	cmd := PageCommand{
		CommandType: strings.ToLower(strings.TrimSpace(get("CommandType"))),
		Amount:      strings.TrimSpace(get("amount")),
		RedirectURL: strings.TrimSpace(get("redirectUrl")),
	}
	trackingNumber, err := strconv.ParseInt(strings.TrimSpace(get("trackingNumber")), 10, 64)
	if err != nil {
		return PageCommand{}, fmt.Errorf("invalid trackingNumber: %w", err)
	}
	cmd.TrackingNumber = trackingNumber
	switch cmd.CommandType {
	case constants.VirtualCommandRequest, constants.VirtualCommandPay, constants.VirtualCommandCancel:
	default:
		return PageCommand{}, fmt.Errorf("invalid CommandType: %q", cmd.CommandType)
	}
	if cmd.RedirectURL == "" {
		return PageCommand{}, fmt.Errorf("redirectUrl is required")
	}
	return cmd, nil
}

// CallbackParams 付款人在模拟页面上做出选择后回传给商户的参数
func (c PageCommand) CallbackParams(transactionCode string) map[string]string {
	params := map[string]string{
		constants.CallbackParamResult: strconv.FormatBool(c.CommandType == constants.VirtualCommandPay),
	}
	if c.CommandType == constants.VirtualCommandPay && transactionCode != "" {
		params[constants.CallbackParamTransactionCode] = transactionCode
	}
	return params
}
