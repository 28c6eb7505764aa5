// Copyright 2025 Antti Kivi
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package iostreams defines the IO stream utilities used by the logging
// setup. Its main export is [NewLockedWriter], which serializes writes from
// multiple goroutines onto one underlying stream.
package iostreams

import (
	"fmt"
	"os"
)

// Errorf formats according to a format specifier and writes it to stderr,
// bypassing the structured logger.
func Errorf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format, a...)
}
