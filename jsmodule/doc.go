// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package jsmodule maps JavaScript call frames to the AMD module that defined
them by scanning bundled source text for module registration calls.

A bundle registers each module with a call like

	define("app/router", ["exports"], function (exports) { ... });

and minifiers often rename the loader function:

	if (false) { e = undefined; } else e = n.__loader.define;
	e("app/router", ["exports"], function (exports) { ... });

FindMangledDefine discovers the renamed identifier and GetModuleIndex finds
the next registration call. A ParsedFile splits the bundle into module
regions once and answers ModuleNameFor lookups from that index.

The scan is a textual heuristic, not a JavaScript parser. A call counts as a
registration only when it starts a statement or a comma sequence element: it
follows a ';', '{', '}' or ',', the start of the text, or a ')' that ends the
previous line. Calls used as expressions such as

	const f = () => e();

are ignored. Registrations hidden inside string literals or comments that
happen to start a statement can be misreported.
*/
package jsmodule // import "github.com/tracerbench/tracebench/jsmodule"
