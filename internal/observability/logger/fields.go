package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - DOMINIO
// =================================================================================

// SubjectID identifica al sujeto autenticado (sub del token).
func SubjectID(v string) zap.Field { return zap.String("subject_id", v) }

// Screen es la pantalla decidida por el guard.
func Screen(v string) zap.Field { return zap.String("screen", v) }

// Classification es el veredicto del resolver de perfiles.
func Classification(v string) zap.Field { return zap.String("classification", v) }

// Token es el request token monotónico de un ciclo de resolución.
func Token(v uint64) zap.Field { return zap.Uint64("token", v) }

// Stage es la etapa actual de un pipeline (enrollment, simulador).
func Stage(v string) zap.Field { return zap.String("stage", v) }

// Progress es el porcentaje 0..100 de un pipeline.
func Progress(v int) zap.Field { return zap.Int("progress", v) }

// Reason es el motivo tipado de un error de dispositivo o de envío.
func Reason(v string) zap.Field { return zap.String("reason", v) }

// Key es una clave de almacenamiento (asset, cache).
func Key(v string) zap.Field { return zap.String("key", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

// Email loguea un email enmascarado ("a…@e….com"); nunca el valor crudo.
func Email(v string) zap.Field { return zap.String("email", maskEmail(v)) }

func maskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.IndexByte(s, '@')
	switch {
	case s == "":
		return ""
	case at <= 0 && len(s) <= 3:
		return "***"
	case at <= 0:
		return s[:1] + "…" + s[len(s)-1:]
	}
	local, domain := s[:at], s[at+1:]
	if len(local) > 1 {
		local = local[:1] + "…"
	}
	if dot := strings.IndexByte(domain, '.'); dot > 1 {
		domain = domain[:1] + "…" + domain[dot:]
	}
	return local + "@" + domain
}

// Uint64 campo genérico uint64.
func Uint64(key string, v uint64) zap.Field { return zap.Uint64(key, v) }

// Field alias para armar listas de campos sin importar zap.
type Field = zap.Field
