package catalog

// IndustryNames enumerates the business census industry labels exactly as
// they are stored, so generated SQL literals match.
var IndustryNames = []string{
	"農林漁業",
	"鉱業_採石業_砂利採取業",
	"建設業",
	"製造業",
	"電気･ガス･熱供給･水道業",
	"情報通信業",
	"運輸業_郵便業",
	"卸売業_小売業",
	"金融業_保険業",
	"不動産業_物品賃貸業",
	"学術研究_専門･技術サービス業",
	"宿泊業_飲食サービス業",
	"生活関連サービス業_娯楽業",
	"教育_学習支援業",
	"医療_福祉",
	"複合サービス事業",
	"サービス業（他に分類されないもの）",
	"公務（他に分類されるものを除く）",
}

// CrimeTaxonomy lists the police-statistics crime pairs as 大分類:小分類.
var CrimeTaxonomy = []string{
	"凶悪犯:強盗",
	"凶悪犯:その他",
	"粗暴犯:傷害",
	"粗暴犯:恐喝",
	"粗暴犯:暴行",
	"粗暴犯:脅迫",
	"侵入窃盗:事務所荒し",
	"侵入窃盗:出店荒し",
	"侵入窃盗:学校荒し",
	"侵入窃盗:居空き",
	"侵入窃盗:忍込み",
	"侵入窃盗:空き巣",
	"侵入窃盗:金庫破り",
	"侵入窃盗:その他",
	"非侵入窃盗:すり",
	"非侵入窃盗:ひったくり",
	"非侵入窃盗:オートバイ盗",
	"非侵入窃盗:万引き",
	"非侵入窃盗:工事場ねらい",
	"非侵入窃盗:置引き",
	"非侵入窃盗:自動車盗",
	"非侵入窃盗:自販機ねらい",
	"非侵入窃盗:自転車盗",
	"非侵入窃盗:車上ねらい",
	"非侵入窃盗:その他",
	"その他:占有離脱物横領",
	"その他:詐欺",
	"その他:賭博",
	"その他:その他刑法犯",
	"その他:その他知能犯",
}

func newHachioji() *Catalog {
	c := New("八王子市", 2015, 2024, []Table{
		{
			Name:        "business_stats",
			Description: "経済センサスの町丁別・産業別の事業所統計",
			Columns: []Column{
				{Name: "year", Type: "INTEGER", Kind: KindTemporal, Meaning: "年度"},
				{Name: "town_name", Type: "VARCHAR", Kind: KindGeoKey, Meaning: "町名"},
				{Name: "industry_name", Type: "VARCHAR", Kind: KindCategory, Meaning: "事業種別", Domain: IndustryNames},
				{Name: "num_offices", Type: "INTEGER", Kind: KindMeasure, Meaning: "事業所数"},
				{Name: "num_employees", Type: "INTEGER", Kind: KindMeasure, Meaning: "従業者数"},
			},
		},
		{
			Name:        "population",
			Description: "住民基本台帳の町丁別の世帯・人口統計",
			Columns: []Column{
				{Name: "year", Type: "BIGINT", Kind: KindTemporal, Meaning: "年度"},
				{Name: "town_name", Type: "VARCHAR", Kind: KindGeoKey, Meaning: "町名"},
				{Name: "num_households", Type: "BIGINT", Kind: KindMeasure, Meaning: "世帯数"},
				{Name: "num_population", Type: "BIGINT", Kind: KindMeasure, Meaning: "人口数"},
				{Name: "num_male", Type: "BIGINT", Kind: KindMeasure, Meaning: "男性数"},
				{Name: "num_female", Type: "BIGINT", Kind: KindMeasure, Meaning: "女性数"},
			},
		},
		{
			Name:        "crimes",
			Description: "警視庁公開の町丁別・手口別の刑法犯認知件数",
			Columns: []Column{
				{Name: "year", Type: "BIGINT", Kind: KindTemporal, Meaning: "年度"},
				{Name: "town_name", Type: "VARCHAR", Kind: KindGeoKey, Meaning: "町名"},
				{Name: "major_crime", Type: "VARCHAR", Kind: KindCategory, Meaning: "犯罪大分類"},
				{Name: "minor_crime", Type: "VARCHAR", Kind: KindCategory, Meaning: "犯罪小分類"},
				{Name: "crime_count", Type: "BIGINT", Kind: KindMeasure, Meaning: "犯罪件数"},
			},
		},
	})
	c.CrimeTaxonomy = CrimeTaxonomy
	return c
}
