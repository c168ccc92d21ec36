// Package logger expone un logger Zap singleton con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una única instancia global inicializada con Init().
//   - Scoping: cada ciclo de resolución, captura o envío puede llevar su propio
//     logger "scoped" (subject_id, op, component) sin crear un nuevo core.
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON, "test" descarta.
//
// # Uso
//
// Inicialización (una vez en cmd/sentinel):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,
//	    Level: cfg.App.LogLevel,
//	})
//	defer logger.Sync()
//
// En componentes (con contexto):
//
//	log := logger.From(ctx).With(logger.Component("profile.resolver"))
//	log.Info("profile created", logger.SubjectID(id))
package logger
