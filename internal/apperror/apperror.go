// Package apperror はサービス層が返すエラーの分類とHTTPステータスへの対応を定義する。
//
// 呼び出し元に返すのは短いメッセージのみで、内部の詳細（ストアのエラー等）は
// Errに保持してログにのみ出力する。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの分類。
type Kind int

const (
	// KindUnexpected は分類できない失敗（ストア障害を含む）。
	KindUnexpected Kind = iota
	// KindUnauthenticated は資格情報がない、不正、または期限切れ。
	KindUnauthenticated
	// KindForbidden は認証済みだが対象リソースへの権限がない。
	KindForbidden
	// KindNotFound は参照先のエンティティが存在しない。
	KindNotFound
	// KindInvalidInput は必須項目の欠落や形式不正。
	KindInvalidInput
	// KindDuplicateIdentity は登録時のユーザー名・メールアドレスの重複。
	KindDuplicateIdentity
	// KindConflict はストアの一意制約違反。
	KindConflict
)

// String はKindの名前を返す。
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindInvalidInput:
		return "InvalidInput"
	case KindDuplicateIdentity:
		return "DuplicateIdentity"
	case KindConflict:
		return "Conflict"
	default:
		return "Unexpected"
	}
}

// HTTPStatus はKindに対応するHTTPステータスコードを返す。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindDuplicateIdentity, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Reason は同じKind内での拒否理由。
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonMissingCredential         Reason = "MissingCredential"
	ReasonInvalidSignatureOrExpired Reason = "InvalidSignatureOrExpired"
	ReasonPrincipalNotFound         Reason = "PrincipalNotFound"
	ReasonInvalidCredentials        Reason = "InvalidCredentials"
	ReasonMissingUniversity         Reason = "MissingUniversity"
	ReasonDuplicateIdentity         Reason = "DuplicateIdentity"
)

// Error はサービス層のエラー。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Reason は拒否理由。設定されない場合もある。
	Reason Reason
	// Message は呼び出し元に返す短いメッセージ。
	Message string
	// Err は内部の原因。ログにのみ出力する。
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New は原因を持たないエラーを生成する。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap は原因を保持したエラーを生成する。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithReason は拒否理由を設定したコピーを返す。
func (e *Error) WithReason(r Reason) *Error {
	cp := *e
	cp.Reason = r
	return &cp
}

// Unauthenticated は認証失敗のエラーを生成する。
func Unauthenticated(r Reason, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Reason: r, Message: message}
}

// Forbidden は権限不足のエラーを生成する。
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// NotFound はエンティティ不在のエラーを生成する。
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// InvalidInput は入力不正のエラーを生成する。
func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message)
}

// Unexpected は予期しない失敗をラップする。
func Unexpected(message string, err error) *Error {
	return Wrap(KindUnexpected, message, err)
}

// Conflict は一意制約違反のエラーを返す。
func Conflict(message string, err error) *Error {
	return Wrap(KindConflict, message, err)
}

// As はerrからErrorを取り出す。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf はerrのKindを返す。Error以外はKindUnexpectedとなる。
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnexpected
}

// ReasonOf はerrのReasonを返す。
func ReasonOf(err error) Reason {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ReasonNone
}
