// Package repository define los contratos de dominio que el núcleo del cliente
// consume del proveedor de identidad/almacenamiento.
//
// El núcleo (session, profile, guard, enrollment) sólo conoce estas
// interfaces; las implementaciones concretas viven en:
//
//	┌──────────────────────────────────────────────────────┐
//	│   session · profile · guard · onboarding · enrollment │
//	└──────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌──────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)                │
//	│ IdentityProvider, ProfileRepository, AssetRepository │
//	└──────────────────────────────────────────────────────┘
//	                        │
//	       ┌────────────────┼─────────────────┐
//	       ▼                ▼                 ▼
//	┌─────────────┐  ┌──────────────┐  ┌─────────────┐
//	│  identity   │  │ store/adapters│ │   assets    │
//	│ (jwt+cache) │  │  pg · memory │  │ fs · memory │
//	└─────────────┘  └──────────────┘  └─────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - Errores de dominio están en errors.go.
package repository
