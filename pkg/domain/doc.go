// Package domain defines the core business types for the Maul agent trust
// and governance simulation engine.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no database, HTTP, gRPC, etc.)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
//
// Other packages (registry, trust, delegation, governance, cascade,
// marketplace, engine) implement behaviour over these types and depend on
// them. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
//
// Note that the engine models governance weaknesses on purpose: unverified
// HITL approvers, deletable audit logs, bypass codes. Those contracts are
// part of the domain and must not be "hardened" in implementing packages.
package domain
