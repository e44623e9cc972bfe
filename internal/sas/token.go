package sas

import (
	"encoding/base64"
	"strings"

	"sas-token-service/internal/domain"
)

// Assemble は委任キーと署名からSASトークンを組み立てる。
// パラメータ順は固定。I/Oは行わない。
func Assemble(key domain.UserDelegationKey, signature []byte, account, container string) domain.SASToken {
	params := [...][2]string{
		{"sp", readPermission},
		{"st", key.SignedStart},
		{"se", key.SignedExpiry},
		{"skoid", key.SignedOID},
		{"sktid", key.SignedTID},
		{"skt", key.SignedStart},
		{"ske", key.SignedExpiry},
		{"sks", key.SignedService},
		{"skv", key.SignedVersion},
		{"spr", httpsProtocol},
		{"sv", key.SignedVersion},
		{"sr", containerResource},
		{"sig", EscapeNonAlphanumeric(base64.StdEncoding.EncodeToString(signature))},
	}

	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(p[1])
	}
	return domain.SASToken(b.String())
}

// EscapeNonAlphanumeric は英数字以外のすべてのバイトを %XX 形式にエスケープする。
func EscapeNonAlphanumeric(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlphanumeric(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAlphanumeric(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
