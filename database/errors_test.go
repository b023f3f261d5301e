/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsSQLErrorMySQLNumbers(t *testing.T) {
	cases := map[uint16]SQLError{
		1062: DuplicateKeyErr,
		1054: NoColumnErr,
		1146: NoTableErr,
		1050: ExistTableErr,
		1048: NotNullViolationErr,
		1216: ForeignKeyViolationErr,
		9999: UnknownErr,
	}
	for number, want := range cases {
		err := &mysql.MySQLError{Number: number, Message: "boom"}
		is, kind := IsSQLError(err)
		assert.True(t, is, "number %d", number)
		assert.Equal(t, want, kind, "number %d", number)
	}
}

func TestIsSQLErrorWrappedMySQL(t *testing.T) {
	err := fmt.Errorf("flush failed: %w", &mysql.MySQLError{Number: 1062})
	is, kind := IsSQLError(err)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}

func TestIsSQLErrorMessages(t *testing.T) {
	cases := map[string]SQLError{
		"no such table: users":                        NoTableErr,
		"SQL logic error: table users already exists": ExistTableErr,
		"UNIQUE constraint failed: users.id":          DuplicateKeyErr,
		"NOT NULL constraint failed: users.name":      NotNullViolationErr,
		"FOREIGN KEY constraint failed":               ForeignKeyViolationErr,
		"ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)": DuplicateKeyErr,
		"ERROR: relation \"users\" does not exist (SQLSTATE 42P01)":              NoTableErr,
		"no such column: nickname":                                               NoColumnErr,
	}
	for msg, want := range cases {
		is, kind := IsSQLError(errors.New(msg))
		assert.True(t, is, msg)
		assert.Equal(t, want, kind, msg)
	}
}

func TestIsSQLErrorUnrecognized(t *testing.T) {
	is, kind := IsSQLError(errors.New("connection refused"))
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)
}
