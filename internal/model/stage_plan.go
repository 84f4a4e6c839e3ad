package model

// StagePlan 某个卡片类型需要执行哪些阶段。
// classify/metadata 默认对所有类型执行，调用方可通过 InitialStatusParams 覆盖。
type StagePlan struct {
	Classify    bool
	Categorize  bool
	Metadata    bool
	Renderables bool
}

// stagePlans 按类型的阶段适用表。新增卡片类型在这里补一行即可，
// 编译期就能发现漏配（配合 StagePlanFor 的 default 分支）。
var stagePlans = map[CardType]StagePlan{
	CardTypeText:     {Classify: true, Metadata: true},
	CardTypeLink:     {Classify: true, Categorize: true, Metadata: true},
	CardTypeImage:    {Classify: true, Metadata: true, Renderables: true},
	CardTypeVideo:    {Classify: true, Metadata: true, Renderables: true},
	CardTypeAudio:    {Classify: true, Metadata: true},
	CardTypeDocument: {Classify: true, Metadata: true, Renderables: true},
	CardTypePalette:  {Classify: true, Metadata: true},
	CardTypeQuote:    {Classify: true, Metadata: true},
}

// StagePlanFor 返回该类型的阶段计划。未知类型按"只做 classify/metadata"处理，
// 与 text 卡一致，保证不会因为脏数据漏掉基础阶段。
func StagePlanFor(t CardType) StagePlan {
	if p, ok := stagePlans[t]; ok {
		return p
	}
	return StagePlan{Classify: true, Metadata: true}
}
