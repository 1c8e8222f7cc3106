// Package httpclient は稼働中のサービスのJSON APIを呼び出すクライアントを提供する。
//
// 固定ヘッダーの付与、タイムアウト、一時的な失敗に対するリトライを扱う。
// エラー応答の {"error": "..."} はStatusErrorとして返す。
package httpclient
