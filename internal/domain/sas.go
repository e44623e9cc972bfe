// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// KeyValidity はユーザー委任キーを要求する有効期間。
const KeyValidity = 2 * time.Hour

// keyTimeLayout はストレージサービスが受け付けるISO 8601形式（秒精度・UTC・末尾Z）。
const keyTimeLayout = "2006-01-02T15:04:05Z"

// ManagedIdentityToken はIMDSが発行したアクセストークンを表す。
// 数値に見えるフィールドも文字列のまま保持し、計算には使わない。
type ManagedIdentityToken struct {
	AccessToken  string `json:"access_token"`
	ClientID     string `json:"client_id"`
	ExpiresIn    string `json:"expires_in"`
	ExpiresOn    string `json:"expires_on"`
	ExtExpiresIn string `json:"ext_expires_in"`
	NotBefore    string `json:"not_before"`
	Resource     string `json:"resource"`
	TokenType    string `json:"token_type"`
}

// KeyRequestWindow はユーザー委任キーの要求期間 [Start, Expiry) を表す。
type KeyRequestWindow struct {
	Start  time.Time
	Expiry time.Time
}

// NewKeyRequestWindow は now を起点とした KeyValidity 分の要求期間を生成する。
func NewKeyRequestWindow(now time.Time) KeyRequestWindow {
	start := now.UTC().Truncate(time.Second)
	return KeyRequestWindow{
		Start:  start,
		Expiry: start.Add(KeyValidity),
	}
}

// FormatKeyTime は時刻を YYYY-MM-DDTHH:MM:SSZ 形式で返す。
func FormatKeyTime(t time.Time) string {
	return t.UTC().Format(keyTimeLayout)
}

// UserDelegationKey はストレージサービスが発行したユーザー委任キーを表す。
type UserDelegationKey struct {
	SignedOID     string `xml:"SignedOid"`
	SignedTID     string `xml:"SignedTid"`
	SignedStart   string `xml:"SignedStart"`
	SignedExpiry  string `xml:"SignedExpiry"`
	SignedService string `xml:"SignedService"`
	SignedVersion string `xml:"SignedVersion"`
	Value         string `xml:"Value"` // Base64エンコードされた鍵
}

// SASToken はクエリ文字列形式のSASトークン。
type SASToken string

func (t SASToken) String() string {
	return string(t)
}

// IssuedToken は発行済みSASトークンとそのメタデータを表す。
type IssuedToken struct {
	ID           string
	Token        SASToken
	Account      string
	Container    string
	SignedStart  string
	SignedExpiry string
}

// IssuanceRecord はSASトークン発行の監査記録を表す（署名や鍵は含まない）。
type IssuanceRecord struct {
	ID           string
	Account      string
	Container    string
	SignedOID    string
	SignedTID    string
	SignedStart  string
	SignedExpiry string
	IssuedAt     time.Time
}
