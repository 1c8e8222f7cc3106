// Package validation は入力構造体の検証を提供する。
// フィールド名はjsonタグの名前で報告する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator は構造体タグに基づいて入力を検証する。
type Validator struct {
	v *validator.Validate
}

// New はValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// FieldError は検証に失敗したフィールド。
type FieldError struct {
	// Field はjson上のフィールド名。
	Field string
	// Rule は失敗したルール（required, min など）。
	Rule string
}

// Error は検証エラー。呼び出し元にそのまま返せる短いメッセージを持つ。
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, describe(f))
	}
	return strings.Join(parts, ", ")
}

// Has はfieldの検証が失敗しているかを返す。
func (e *Error) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Struct はsを検証する。失敗した場合は*Errorを返す。
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &Error{Fields: make([]FieldError, 0, len(ve))}
	for _, fe := range ve {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

func describe(f FieldError) string {
	switch f.Rule {
	case "required":
		return fmt.Sprintf("%sは必須です", f.Field)
	case "email":
		return fmt.Sprintf("%sの形式が不正です", f.Field)
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("%sの長さまたは範囲が不正です", f.Field)
	default:
		return fmt.Sprintf("%sが不正です", f.Field)
	}
}
