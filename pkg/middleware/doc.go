// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearer資格情報による認証、リクエストログ、パニックリカバリ、
// CORS設定を含む。資格情報の検証自体は呼び出し側が渡す関数に委ねる。
package middleware
