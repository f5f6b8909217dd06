package domain

import "time"

// CopyPlan 规划一次 “源文件 -> 输出副本” 的复制。
type CopyPlan struct {
	Role   Role
	SrcAbs string
	DstAbs string
}

// CompositePlan 描述一次合成（只在单条记录内构造并消费）。
type CompositePlan struct {
	FrontAbs string
	BackAbs  string
	DstAbs   string
	TakenAt  time.Time
	Location *Coords
}

// RecordPlan 是对某条记录的最小执行计划（名称确定、可重复）。
type RecordPlan struct {
	Kind    Kind
	TakenAt time.Time // 命名所用的时刻（UTC 或本地，取决于命名约定）
	Base    string    // YYYY-MM-DD_HH-MM-SS

	Copies    []CopyPlan
	Composite *CompositePlan
}
