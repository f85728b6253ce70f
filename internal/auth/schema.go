// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// AccountSchemaID is the $id of the generated account schema.
const AccountSchemaID = "https://doorman.holomush.dev/schemas/accounts.schema.json"

var (
	accountSchemaOnce sync.Once
	accountSchema     *jschema.Schema
	accountSchemaErr  error
)

// GenerateAccountSchema generates the JSON Schema for one persisted Account.
func GenerateAccountSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Account{})

	schema.ID = jsonschema.ID(AccountSchemaID)
	schema.Title = "Doorman Account"
	schema.Description = `Schema for each element of the persisted "users" record`

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// ValidateUsersRecord checks a raw "users" record: a JSON array whose
// elements each satisfy the account schema.
func ValidateUsersRecord(data []byte) error {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	items, ok := doc.([]any)
	if !ok {
		return fmt.Errorf("users record must be a JSON array, got %T", doc)
	}

	sch, err := compiledAccountSchema()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	for i, item := range items {
		if err := sch.Validate(item); err != nil {
			return fmt.Errorf("account %d: schema validation failed: %w", i, err)
		}
	}
	return nil
}

func compiledAccountSchema() (*jschema.Schema, error) {
	accountSchemaOnce.Do(func() {
		raw, err := GenerateAccountSchema()
		if err != nil {
			accountSchemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			accountSchemaErr = fmt.Errorf("failed to parse schema JSON: %w", err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("accounts.schema.json", doc); err != nil {
			accountSchemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		accountSchema, accountSchemaErr = c.Compile("accounts.schema.json")
	})
	return accountSchema, accountSchemaErr
}
