// Package publish copies the working content documents into the static
// site's data directory and records the change in version control.
//
// A publish runs these steps in order, stopping at the first failure:
//
//	copy      each present document to <static-dir>/<category>.json
//	manifest  manifest.json (category -> sha256), plus manifest.sig when a signer is set
//	mirror    optional upload of documents and manifest to S3
//	add       git add -A <static-dir>
//	commit    git commit -m <message>
//	push      git push <remote> [<branch>]
//
// A commit with nothing staged is a success and skips the push. Completed
// steps are not rolled back when a later one fails.
package publish
