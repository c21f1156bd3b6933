// Package outline 定义投标文件大纲的领域模型
package outline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed 大纲结构不合法
var ErrMalformed = errors.New("malformed outline")

// Outline 投标文件大纲，章 -> 节 -> 小节 三级结构
type Outline struct {
	Chapters []Chapter `json:"body_paragraphs"`
}

// Chapter 章
type Chapter struct {
	Title    string    `json:"chapter_title"`
	Sections []Section `json:"sections"`
}

// Section 节
type Section struct {
	Title       string       `json:"section_title"`
	SubSections []SubSection `json:"sub_sections"`
}

// SubSection 小节（叶子节点），ContentSummary 为内容生成指令
type SubSection struct {
	Title          string `json:"sub_section_title"`
	ContentSummary string `json:"content_summary"`
}

// 解析用的中间结构：指针字段区分「字段缺失」与「零值」
type rawOutline struct {
	Chapters *[]rawChapter `json:"body_paragraphs"`
}

type rawChapter struct {
	Title    *string       `json:"chapter_title"`
	Sections *[]rawSection `json:"sections"`
}

type rawSection struct {
	Title       *string          `json:"section_title"`
	SubSections *[]rawSubSection `json:"sub_sections"`
}

type rawSubSection struct {
	Title          *string `json:"sub_section_title"`
	ContentSummary *string `json:"content_summary"`
}

// Parse 解析大纲 JSON，严格校验（fail-fast，不产生局部树）。
// 任一节点缺少必需字段即整体失败。
func Parse(data []byte) (*Outline, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var raw rawOutline
	dec := json.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Chapters == nil {
		return nil, fmt.Errorf("%w: missing required field 'body_paragraphs'", ErrMalformed)
	}

	o := &Outline{Chapters: make([]Chapter, 0, len(*raw.Chapters))}
	for i, rc := range *raw.Chapters {
		if rc.Title == nil || rc.Sections == nil {
			return nil, fmt.Errorf("%w: chapter %d missing required fields", ErrMalformed, i)
		}

		chapter := Chapter{Title: *rc.Title, Sections: make([]Section, 0, len(*rc.Sections))}
		for j, rs := range *rc.Sections {
			if rs.Title == nil || rs.SubSections == nil {
				return nil, fmt.Errorf("%w: chapter %d section %d missing required fields", ErrMalformed, i, j)
			}

			section := Section{Title: *rs.Title, SubSections: make([]SubSection, 0, len(*rs.SubSections))}
			for k, rss := range *rs.SubSections {
				if rss.Title == nil || rss.ContentSummary == nil {
					return nil, fmt.Errorf("%w: chapter %d section %d sub-section %d missing required fields", ErrMalformed, i, j, k)
				}
				section.SubSections = append(section.SubSections, SubSection{
					Title:          *rss.Title,
					ContentSummary: *rss.ContentSummary,
				})
			}
			chapter.Sections = append(chapter.Sections, section)
		}
		o.Chapters = append(o.Chapters, chapter)
	}

	return o, nil
}

// MarshalIndent 序列化为缩进 JSON（持久化格式）
func (o *Outline) MarshalIndent() ([]byte, error) {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Markdown 将大纲渲染为 Markdown：章为一级标题，节为二级，小节为三级，
// 小节标题后跟内容概要段落。同一棵树的输出是确定的（保持插入顺序）。
func (o *Outline) Markdown() string {
	var lines []string
	for _, chapter := range o.Chapters {
		lines = append(lines, "# "+chapter.Title)
		for _, section := range chapter.Sections {
			lines = append(lines, "## "+section.Title)
			for _, sub := range section.SubSections {
				lines = append(lines, "### "+sub.Title)
				lines = append(lines, "\n"+sub.ContentSummary+"\n")
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Leaf 小节的扁平投影：携带所属章标题，供生成调度使用
type Leaf struct {
	Title          string
	ContentSummary string
	Chapter        string
}

// Leaves 先序遍历收集全部小节
func (o *Outline) Leaves() []Leaf {
	var leaves []Leaf
	for _, chapter := range o.Chapters {
		for _, section := range chapter.Sections {
			for _, sub := range section.SubSections {
				leaves = append(leaves, Leaf{
					Title:          sub.Title,
					ContentSummary: sub.ContentSummary,
					Chapter:        chapter.Title,
				})
			}
		}
	}
	return leaves
}

// CountLeaves 统计小节总数
func (o *Outline) CountLeaves() int {
	n := 0
	for _, chapter := range o.Chapters {
		for _, section := range chapter.Sections {
			n += len(section.SubSections)
		}
	}
	return n
}
