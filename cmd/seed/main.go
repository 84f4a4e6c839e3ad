package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/azhengyongqin/cardflow/sdk"
)

// 示例数据生成器：通过 HTTP API 批量建卡，触发各条富化路径，
// 用于本地联调和观察流水线各阶段的表现。
func main() {
	if err := loadEnvFile(); err != nil {
		log.Printf("警告: 无法加载 .env 文件: %v（将使用环境变量或默认值）", err)
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:28080"
	}

	client := sdk.NewClient(baseURL)
	ctx := context.Background()

	log.Println("=== 开始生成示例卡片 ===")

	seeds := []sdk.CreateCardRequest{
		{OwnerID: "seed-user", Type: "link", URL: "https://github.com/golang/go", Tags: []string{"go", "源码"}},
		{OwnerID: "seed-user", Type: "link", URL: "https://dribbble.com/shots/popular"},
		{OwnerID: "seed-user", Type: "link", URL: "https://www.goodreads.com/book/show/4671.The_Great_Gatsby"},
		{OwnerID: "seed-user", Content: "“简单比复杂难，你必须努力让你的想法变得清晰。”"},
		{OwnerID: "seed-user", Content: "#FF5733 #33FF57 #3357FF #F0F0F0"},
		{OwnerID: "seed-user", Content: "https://go.dev/blog/error-handling-and-go"},
		{OwnerID: "seed-user", Content: "周会纪要：下个迭代优先做链接富化的缓存命中率优化。", Notes: "待整理"},
	}

	var workflowIDs []string
	for i, req := range seeds {
		resp, err := client.CreateCard(ctx, req)
		if err != nil {
			log.Printf("✗ 建卡 %d 失败: %v", i, err)
			continue
		}
		log.Printf("✓ 建卡: %s (type=%s workflow=%s)", resp.CardID, resp.Type, resp.WorkflowID)
		if resp.WorkflowID != "" {
			workflowIDs = append(workflowIDs, resp.WorkflowID)
		}

		// 避免过快入队
		time.Sleep(100 * time.Millisecond)
	}

	// 等一轮异步处理后查看运行状态
	if len(workflowIDs) > 0 {
		log.Println("等待异步处理...")
		time.Sleep(3 * time.Second)

		for _, id := range workflowIDs {
			run, err := client.GetRun(ctx, id)
			if err != nil {
				log.Printf("✗ 查询运行 %s 失败: %v", id, err)
				continue
			}
			line := fmt.Sprintf("  → 运行 %s: kind=%s status=%s", run.RunID, run.Kind, run.Status)
			if run.LastError != "" {
				line += " error=" + run.LastError
			}
			log.Println(line)
		}
	}

	log.Println("=== 示例数据生成完成 ===")
	log.Println("提示: 打开 Swagger 查看更多接口:")
	log.Printf("  %s/swagger/index.html", baseURL)
}

// loadEnvFile 从当前目录或上级目录加载 .env
func loadEnvFile() error {
	for _, dir := range []string{".", "..", filepath.Join("..", "..")} {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return godotenv.Load(path)
		}
	}
	return fmt.Errorf(".env 文件不存在")
}
