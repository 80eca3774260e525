package domain

// SystemCategory is one entry of the fixed taxonomy. Declaration order
// matters: quick-classification ties break toward the earlier entry.
type SystemCategory struct {
	Name        string
	Description string
	Color       string
	Keywords    []string
	FilePattern []string
	Extensions  []string
}

// SystemTaxonomy is the fixed set of system categories. The rows are
// seeded at bootstrap and are not user-deletable.
var SystemTaxonomy = []SystemCategory{
	{
		Name:        "职场商务",
		Description: "工作相关文档、商业计划、职业发展、会议记录、项目管理等",
		Color:       "#2196F3",
		Keywords: []string{
			"工作", "商务", "职场", "项目", "会议", "商业", "管理", "职业", "公司",
			"团队", "业务", "客户", "合同", "报告", "计划", "纪要", "议题", "决议", "讨论",
		},
		FilePattern: []string{"report", "meeting", "business", "work", "project", "plan", "minutes", "agenda"},
		Extensions:  []string{".docx", ".pptx", ".xlsx"},
	},
	{
		Name:        "生活点滴",
		Description: "日常生活记录、个人感悟、生活经验、旅行日记、美食分享等",
		Color:       "#4CAF50",
		Keywords: []string{
			"生活", "日常", "个人", "旅行", "美食", "感悟", "经验", "日记", "家庭",
			"朋友", "休闲", "娱乐", "购物", "健康", "风景", "自拍",
		},
		FilePattern: []string{"diary", "life", "travel", "food", "personal", "daily", "selfie", "vacation"},
		// Image extensions deliberately absent: content decides, not format.
		Extensions: []string{},
	},
	{
		Name:        "学习成长",
		Description: "学习笔记、技能提升、知识总结、读书心得、课程资料等",
		Color:       "#FF9800",
		Keywords: []string{
			"学习", "笔记", "知识", "技能", "成长", "教育", "课程", "读书", "培训",
			"考试", "研究", "总结", "心得", "方法", "教程",
		},
		FilePattern: []string{"study", "learn", "note", "course", "education", "training", "research", "tutorial"},
		Extensions:  []string{".md", ".txt", ".pdf"},
	},
	{
		Name:        "科技前沿",
		Description: "技术文档、科技资讯、创新产品、编程代码、技术趋势等",
		Color:       "#9C27B0",
		Keywords: []string{
			"技术", "科技", "编程", "代码", "创新", "产品", "趋势", "开发", "算法",
			"数据", "AI", "人工智能", "机器学习", "区块链", "架构", "系统", "API",
		},
		FilePattern: []string{"tech", "code", "dev", "api", "algorithm", "data", "ai", "ml", "architecture", "system"},
		Extensions:  []string{".py", ".js", ".java", ".cpp", ".go", ".rs", ".json", ".yaml", ".yml"},
	},
}

// DefaultCategoryName is assigned when no rule produces a signal.
const DefaultCategoryName = "学习成长"

func IsSystemCategoryName(name string) bool {
	for _, c := range SystemTaxonomy {
		if c.Name == name {
			return true
		}
	}
	return false
}
