package generation

import (
	"sort"
	"strconv"
	"strings"
)

// 二级标题缺失时的兜底文本
const unknownGroupTitle = "未知标题"

// Assemble 把顺序保持的小节结果重组为章/节/小节层级的 Markdown。
// 章按首次出现顺序输出；章内按小节标题的前两段数字前缀（如 "1.1.1" 的 "1.1"）
// 聚合为二级分组，分组按前缀升序输出，分组内保持原始顺序。
// 同一份输入的两次装配产生逐字节相同的输出。
func Assemble(results []LeafResult) string {
	var chapterOrder []string
	byChapter := make(map[string][]LeafResult)

	for _, r := range results {
		if _, seen := byChapter[r.Chapter]; !seen {
			chapterOrder = append(chapterOrder, r.Chapter)
		}
		byChapter[r.Chapter] = append(byChapter[r.Chapter], r)
	}

	var parts []string
	for _, chapter := range chapterOrder {
		parts = append(parts, "# "+chapter+"\n")
		parts = append(parts, assembleChapter(byChapter[chapter])...)
	}

	return strings.Join(parts, "\n")
}

type sectionGroup struct {
	prefix string
	title  string
	leaves []LeafResult
}

// assembleChapter 把一章内的小节按二级前缀聚合并渲染
func assembleChapter(leaves []LeafResult) []string {
	var groupOrder []string
	groups := make(map[string]*sectionGroup)

	for _, leaf := range leaves {
		prefix := sectionPrefix(leaf.Title)
		g, ok := groups[prefix]
		if !ok {
			g = &sectionGroup{
				prefix: prefix,
				title:  groupTitle(leaf.Title, prefix),
			}
			groups[prefix] = g
			groupOrder = append(groupOrder, prefix)
		}
		g.leaves = append(g.leaves, leaf)
	}

	sort.SliceStable(groupOrder, func(i, j int) bool {
		return comparePrefix(groupOrder[i], groupOrder[j]) < 0
	})

	var parts []string
	for _, prefix := range groupOrder {
		g := groups[prefix]
		parts = append(parts, "## "+g.title+"\n")
		for _, leaf := range g.leaves {
			parts = append(parts, "### "+leaf.Title+"\n\n"+leaf.Content+"\n")
		}
	}
	return parts
}

// sectionPrefix 提取标题首个词元的前两段点分前缀，如 "1.1.1 范围" -> "1.1"
func sectionPrefix(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	segments := strings.Split(fields[0], ".")
	if len(segments) < 2 {
		return fields[0]
	}
	return segments[0] + "." + segments[1]
}

// groupTitle 在小节标题的各行中找以 "<prefix> " 开头的整行作为二级标题，
// 找不到时退回 "<prefix> 未知标题"。该兜底是刻意的宽容：标题格式瑕疵
// 不应中断整个生成运行。
func groupTitle(leafTitle, prefix string) string {
	for _, line := range strings.Split(leafTitle, "\n") {
		if strings.HasPrefix(line, prefix+" ") {
			return line
		}
	}
	return prefix + " " + unknownGroupTitle
}

// comparePrefix 数字感知的前缀比较："1.2" 先于 "1.10"，非数字段退回字典序
func comparePrefix(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aErr := strconv.Atoi(as[i])
		bi, bErr := strconv.Atoi(bs[i])
		if aErr == nil && bErr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}
		if cmp := strings.Compare(as[i], bs[i]); cmp != 0 {
			return cmp
		}
	}

	return len(as) - len(bs)
}
