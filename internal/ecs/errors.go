package ecs

import "errors"

var (
	// ErrTypeAlreadyRegistered indicates a second registration under the same name.
	ErrTypeAlreadyRegistered = errors.New("ecs: component type already registered")
	// ErrTypeNotRegistered signals a lookup on an unknown component type.
	ErrTypeNotRegistered = errors.New("ecs: component type not registered")
	// ErrInvalidTypeSpec is returned for a TypeSpec missing its name, constructor or capacity.
	ErrInvalidTypeSpec = errors.New("ecs: invalid type spec")
	// ErrMemberLayoutMismatch indicates an instance declared members that differ from its type's layout.
	ErrMemberLayoutMismatch = errors.New("ecs: member layout mismatch")
	// ErrNoSuchComponent signals a lookup of a deleted or never-created component.
	ErrNoSuchComponent = errors.New("ecs: no such component")
	// ErrNoSuchEntity signals an operation on a dead or unknown entity.
	ErrNoSuchEntity = errors.New("ecs: no such entity")
	// ErrNoStrategy is returned by Process when no rendering strategy was selected.
	ErrNoStrategy = errors.New("ecs: no rendering strategy selected")
	// ErrStrategyAlreadySelected indicates an attempt to change the strategy mid-run.
	ErrStrategyAlreadySelected = errors.New("ecs: rendering strategy already selected")
)
