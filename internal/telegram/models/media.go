package models

import "fmt"

// Classification 媒体分类标签（互斥，四选一）
type Classification string

const (
	ClassMovie      Classification = "movie"
	ClassEpisodic   Classification = "episodic"
	ClassLowQuality Classification = "low_quality"
	ClassUnknown    Classification = "unknown"
)

// EpisodeSentinel 整季打包资源使用的集数占位值
const EpisodeSentinel = 999

// Valid 是否为已知分类
func (c Classification) Valid() bool {
	switch c {
	case ClassMovie, ClassEpisodic, ClassLowQuality, ClassUnknown:
		return true
	default:
		return false
	}
}

// EpisodeInfo 剧集元数据
type EpisodeInfo struct {
	Title      string `json:"name" bson:"title"`                                   // 归一化剧名
	Season     int    `json:"season" bson:"season"`                                // 季
	Episode    int    `json:"episode" bson:"episode"`                              // 集（整季为 EpisodeSentinel）
	EpisodeEnd int    `json:"episode_end,omitempty" bson:"episode_end,omitempty"` // 连续多集的结束集
}

// IsSeasonPack 是否为整季资源
func (e *EpisodeInfo) IsSeasonPack() bool {
	return e != nil && e.Episode == EpisodeSentinel
}

// MediaRecord 扫描得到的媒体记录，创建后不再修改
// JSON 字段名与索引文件格式保持一致，不能随意改动
type MediaRecord struct {
	MessageID      int            `json:"msg_id" bson:"msg_id"`
	ChatID         int64          `json:"chat_id" bson:"chat_id"`
	ContentID      string         `json:"unique_id" bson:"unique_id"` // 平台文件唯一 ID
	DisplayName    string         `json:"name" bson:"name"`
	ByteSize       int64          `json:"size" bson:"size"`
	Caption        string         `json:"caption" bson:"caption"`
	Classification Classification `json:"classification" bson:"classification"`
	LowQuality     bool           `json:"low_quality" bson:"low_quality"`
	Episode        *EpisodeInfo   `json:"meta,omitempty" bson:"meta,omitempty"`
}

// CompoundKey 备用身份键：文件名-大小
// 文件名或大小缺失时返回空串
func (r *MediaRecord) CompoundKey() string {
	return CompoundKey(r.DisplayName, r.ByteSize)
}

// CompoundKey 根据文件名与大小生成备用身份键
func CompoundKey(name string, size int64) string {
	if name == "" || size <= 0 {
		return ""
	}
	return fmt.Sprintf("%s-%d", name, size)
}

// IsEpisodic 是否为剧集
func (r *MediaRecord) IsEpisodic() bool {
	return r.Classification == ClassEpisodic
}

// DuplicateIndex 目标频道已存在内容的身份集合（目标索引文件格式）
type DuplicateIndex struct {
	ContentIDs   []string `json:"unique_ids"`
	CompoundKeys []string `json:"compound_keys"`
}

// Len 身份条目总数
func (d *DuplicateIndex) Len() int {
	return len(d.ContentIDs) + len(d.CompoundKeys)
}

// Category 索引分类，对应不同的索引文件
type Category string

const (
	CategoryFull   Category = "full"
	CategoryMovie  Category = "movie"
	CategorySeries Category = "series"
	CategoryBad    Category = "bad"
)

// ParseCategory 解析分类名称，未知值返回错误
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryFull, CategoryMovie, CategorySeries, CategoryBad:
		return Category(s), nil
	case "all", "":
		return CategoryFull, nil
	case "movies":
		return CategoryMovie, nil
	case "webseries", "tv":
		return CategorySeries, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}
