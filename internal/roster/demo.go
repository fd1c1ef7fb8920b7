package roster

import "staffing-board/internal/models"

var demoRows = [][6]string{
	{"U12345678901234567890abcd", "田中一郎", "大工", "神奈川", "相模原市", "2025-08-25T10:30:00Z"},
	{"U23456789012345678901bcde", "佐藤次郎", "大工", "東京", "新宿区", "2025-08-24T14:15:00Z"},
	{"U34567890123456789012cdef", "鈴木三郎", "電気", "千葉", "浦安市", "2025-08-26T09:45:00Z"},
	{"U45678901234567890123def0", "山田四郎", "左官", "埼玉", "川口市", "2025-08-23T16:20:00Z"},
	{"U56789012345678901234ef01", "高橋五郎", "大工", "神奈川", "横浜市", "2025-08-25T13:10:00Z"},
	{"U67890123456789012345f012", "伊藤六郎", "電気", "東京", "品川区", "2025-08-26T11:30:00Z"},
	{"U78901234567890123456012a", "渡辺七郎", "左官", "千葉", "千葉市", "2025-08-24T08:45:00Z"},
	{"U89012345678901234567123b", "小林八郎", "大工", "埼玉", "さいたま市", "2025-08-25T17:25:00Z"},
	{"U90123456789012345678234c", "加藤九郎", "電気", "神奈川", "川崎市", "2025-08-26T12:15:00Z"},
	{"U12345678901234567890456e", "中村十一郎", "大工", "千葉", "船橋市", "2025-08-25T15:40:00Z"},
	{"U23456789012345678901567f", "松本十二郎", "電気", "埼玉", "所沢市", "2025-08-24T09:20:00Z"},
	{"U34567890123456789012678a", "井上十三郎", "左官", "神奈川", "藤沢市", "2025-08-26T14:50:00Z"},
	{"U45678901234567890123789b", "木村十四郎", "大工", "東京", "世田谷区", "2025-08-25T11:35:00Z"},
	{"U56789012345678901234890c", "林十五郎", "電気", "千葉", "市川市", "2025-08-23T13:25:00Z"},
	{"U67890123456789012345901d", "清水十六郎", "左官", "埼玉", "越谷市", "2025-08-24T16:10:00Z"},
}

// DemoCandidates returns the roster used to seed an empty store.
func DemoCandidates() []models.Candidate {
	out := make([]models.Candidate, 0, len(demoRows))
	for _, row := range demoRows {
		out = append(out, models.Candidate{
			ID:         row[0],
			Name:       row[1],
			Trade:      row[2],
			Pref:       row[3],
			City:       row[4],
			Status:     models.CandidateActive,
			Source:     "demo",
			LastSeenAt: row[5],
		})
	}
	return out
}
