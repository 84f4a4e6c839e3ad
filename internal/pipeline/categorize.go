package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// defaultCategoryConfidence provider 没有给出站点特定置信度时的兜底值
const defaultCategoryConfidence = 0.6

// categorizeStage 把链接卡分到来源类目（book/article/product/...）。
// 已知站点走专属 provider 解析结构化事实，未知站点落到 generic。
func (p *Pipeline) categorizeStage(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	if card.Type != model.CardTypeLink {
		return stageOutcome{}, fmt.Errorf("categorize 只适用于链接卡，当前类型 %s", card.Type)
	}
	if card.URL == "" {
		return stageOutcome{}, fmt.Errorf("链接卡缺少 URL")
	}

	// 已有类目结果：跳过工作，只确认置信度
	if card.Category != "" {
		conf := defaultCategoryConfidence
		if card.CategoryConfidence != nil {
			conf = *card.CategoryConfidence
		}
		return stageOutcome{Confidence: conf}, nil
	}

	page, err := p.fetchPage(ctx, card.URL)
	if err != nil {
		return stageOutcome{}, err
	}

	host := hostOf(page.FinalURL)
	if host == "" {
		host = hostOf(card.URL)
	}

	provider := providerFor(host)
	result := provider.Extract(host, page.Meta, page.Preview)
	if result.Confidence == 0 {
		result.Confidence = defaultCategoryConfidence
	}

	if err := p.cards.SaveCategorization(ctx, card.CardID, result.Category, result.Confidence, result.Facts); err != nil {
		return stageOutcome{}, err
	}

	card.Category = result.Category
	card.CategoryConfidence = &result.Confidence
	card.CategoryFacts = result.Facts

	return stageOutcome{Confidence: result.Confidence}, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
