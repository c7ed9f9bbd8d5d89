package preset

// qa is a question/answer pair in the builtin table.
type qa struct {
	Question string
	Answer   string
}

// builtinTable is the curated labor-insurance Q&A fallback, used when no JSON
// database is configured or the database has no match. Order matters:
// substring matching scans top to bottom and the first hit wins.
var builtinTable = []qa{
	{"什麼是勞工保險", "勞工保險是政府設立的社會保險制度，保障勞工在生病、傷病、生育、職災等情況下的醫療、撫卹等保障。"},
	{"勞工保險失能給付", "失能給付分15級，按平均日投保薪資×日數計算。第1級1200日，第15級30日。"},
	{"如何申請失能給付", "1.準備失能診斷書 2.填寫申請書 3.向勞保局申請 4.等待審核結果。"},
	{"失能等級如何判定", "由健保特約醫院或診所出具失能診斷書，依勞工保險失能給付標準判定等級。"},
	{"失能給付金額", "普通傷病：第1級1200日，第15級30日。職業傷病：第1級1800日，第15級45日。"},
	{"申請失能給付需要什麼文件", "失能診斷書、申請書、身分證明、投保資料等相關文件。"},
	{"失能給付多久可以領到", "申請後約1-2個月內審核完成，通過後即可領取給付。"},
	{"失能給付可以領幾次", "失能給付為一次給付，領取後即結案。"},
	{"什麼是職業傷病", "因執行職務而致傷害或疾病，包括職業災害和職業病。"},
	{"職業傷病給付標準", "職業傷病失能給付比普通傷病高1.5倍，如第1級1800日。"},
	{"失能診斷書哪裡開", "健保特約醫院或診所，部分項目需醫學中心或區域醫院以上。"},
	{"失能給付申請資格", "勞保被保險人，經治療後症狀固定，再行治療仍不能期待其治療效果者。"},
	{"失能給付計算方式", "平均日投保薪資 × 失能等級對應日數 = 給付金額。"},
	{"失能給付免稅嗎", "失能給付免納所得稅，但需依規定申報。"},
	{"失能給付可以分期領取嗎", "失能給付為一次給付，無法分期領取。"},
	{"失能等級如何評估", "失能等級評估依據失能程度、康復可能性、以及對生活功能造成的影響。由健保特約醫院出具失能診斷書，依勞工保險失能給付標準判定等級，分為15級，第1級最嚴重（1200日），第15級最輕微（30日）。評估時會考慮身體機能、工作能力、日常生活自理能力等因素。"},
}
