// Package sas はユーザー委任SASの署名計算とトークン組み立てを提供する。
package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"sas-token-service/internal/domain"
)

const (
	// readPermission はこのツールが発行する唯一の権限。
	readPermission = "r"
	// httpsProtocol は許可するプロトコル。
	httpsProtocol = "https"
	// containerResource はコンテナを対象とするリソース種別。
	containerResource = "c"
)

// stringToSign は署名対象の正規化文字列を組み立てる。
// フィールドは改行で区切り、未使用の任意フィールドも空行として必ず残す。
// 最後のフィールド (rsct) の後ろに改行は付けない。
func stringToSign(key domain.UserDelegationKey, account, container string) string {
	fields := [...]string{
		readPermission,   // signedPermissions
		key.SignedStart,  // signedStart
		key.SignedExpiry, // signedExpiry
		"/blob/" + account + "/" + container,
		key.SignedOID,
		key.SignedTID,
		key.SignedStart,   // signedKeyStart
		key.SignedExpiry,  // signedKeyExpiry
		key.SignedService, // signedKeyService
		key.SignedVersion, // signedKeyVersion
		"",                // signedAuthorizedUserObjectId
		"",                // signedUnauthorizedUserObjectId
		"",                // signedCorrelationId
		"",                // signedIP
		httpsProtocol,
		key.SignedVersion, // signedVersion
		containerResource,
		"", // signedSnapshotTime
		"", // signedEncryptionScope
		"", // rscc
		"", // rscd
		"", // rsce
		"", // rscl
		"", // rsct
	}

	return strings.Join(fields[:], "\n")
}

// ComputeSignature はユーザー委任キーで正規化文字列のHMAC-SHA256を計算する。
// 戻り値はエンコード前の32バイトのダイジェスト。
func ComputeSignature(key domain.UserDelegationKey, account, container string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(key.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding user delegation key: %v", domain.ErrEncoding, err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(stringToSign(key, account, container)))
	return mac.Sum(nil), nil
}
