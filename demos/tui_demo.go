// Demo program that reviews a bundled sample diff with the rule-based
// detectors and browses the result in the TUI. No network access is needed.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"sift-agent/src/mcp"
	"sift-agent/src/pipeline"
	"sift-agent/src/tui"
)

const sampleDiff = `diff --git a/service/handlers.py b/service/handlers.py
index 3f1c2aa..8b0e4d1 100644
--- a/service/handlers.py
+++ b/service/handlers.py
@@ -1,6 +1,16 @@
 import subprocess
+import hashlib
+import pickle
 
 DB_PASSWORD = "hunter2-prod"
 
+def getUser(db, name, cache={}):
+    row = db.execute("SELECT * FROM users WHERE name = '%s'" % name)
+    print(row)
+    return row
+
+def restore(blob):
+    return pickle.loads(blob)
+
 def run(cmd):
-    return subprocess.run(cmd)
+    return subprocess.run(cmd, shell=True)
diff --git a/web/app.js b/web/app.js
index 1a2b3c4..5d6e7f8 100644
--- a/web/app.js
+++ b/web/app.js
@@ -10,3 +10,9 @@ export function render(input) {
   const root = document.getElementById("root");
+  var html = eval(input.template);
+  if (input.count == 0) {
+    console.log("empty input", input);
+  }
+  // TODO: escape user content before rendering
+  try { root.innerHTML = html; } catch (e) {}
   return root;
 }
diff --git a/worker/poll.go b/worker/poll.go
index 9999999..aaaaaaa 100644
--- a/worker/poll.go
+++ b/worker/poll.go
@@ -3,2 +3,7 @@ package worker
 func Poll(client *Client) {
+	for {
+		_ = client.Fetch()
+		fmt.Println("polled")
+		time.Sleep(5 * time.Second)
+	}
 }
`

func main() {
	req, err := mcp.LocalRequest(sampleDiff, "acme/demo", "Sample change")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		os.Exit(1)
	}

	err = tui.Start("acme/demo (sample)", func(send func(tea.Msg)) (*pipeline.ReviewRecord, error) {
		p := pipeline.New(pipeline.Options{
			Observers: []pipeline.Observer{tui.ProgressObserver(send)},
		})
		return p.Run(context.Background(), req)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
