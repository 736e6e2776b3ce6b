// Package model はドメインモデルを定義する。
package model

// Digest は1回の通知配信のために組み立てられる一時的な集約結果。
// カテゴリ→テナントID→レコード列（新着判定時刻の降順）の2段マップで保持する。
// 永続化されず、配信後に破棄される。
//
// 対象期間内にレコードが0件のテナント/カテゴリの組も空スライスとして保持する。
// 描画側が「更新なし」を明示表示できるようにするためで、省略はしない。
type Digest struct {
	Setting  NotificationSetting
	Sections map[Category]map[string][]Record
}

// NewDigest は設定に紐づく空のDigestを生成する。
func NewDigest(setting NotificationSetting) *Digest {
	return &Digest{
		Setting:  setting,
		Sections: make(map[Category]map[string][]Record),
	}
}

// Add はテナント/カテゴリのレコード列をDigestに追加する。
// recordsが空でもエントリ自体は保持される。
func (d *Digest) Add(category Category, tenantID string, records []Record) {
	if d.Sections[category] == nil {
		d.Sections[category] = make(map[string][]Record)
	}
	if records == nil {
		records = []Record{}
	}
	d.Sections[category][tenantID] = records
}

// HasContent は1件以上のレコードを含むかを返す。
// falseの場合、ディスパッチャは送信をスキップする（空ダイジェストメールを送らない）。
func (d *Digest) HasContent() bool {
	for _, tenants := range d.Sections {
		for _, records := range tenants {
			if len(records) > 0 {
				return true
			}
		}
	}
	return false
}
