package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/service"
)

// 生成 merchant.accounts[].secret_hash 所需的 bcrypt 哈希
func main() {
	var name string
	flag.StringVar(&name, "name", "", "商户名称")
	flag.Parse()

	logger.Init("debug", logger.Options{})
	stdLog := logger.StdLogger()

	if strings.TrimSpace(name) == "" {
		stdLog.Fatalf("必须通过 -name 指定商户名称")
	}

	fmt.Fprint(os.Stderr, "secret: ")
	reader := bufio.NewReader(os.Stdin)
	secret, err := reader.ReadString('\n')
	if err != nil && secret == "" {
		stdLog.Fatalf("读取商户密钥失败: %v", err)
	}
	secret = strings.TrimRight(secret, "\r\n")
	if len(secret) < 12 {
		stdLog.Fatalf("商户密钥至少需要 12 个字符")
	}

	hash, err := service.HashSecret(secret)
	if err != nil {
		stdLog.Fatalf("生成哈希失败: %v", err)
	}
	fmt.Printf("merchant:\n  accounts:\n    - name: %s\n      secret_hash: %q\n", strings.TrimSpace(name), hash)
}
