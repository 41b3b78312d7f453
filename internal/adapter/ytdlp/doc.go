// Package ytdlp drives the yt-dlp binary: a metadata-only lookup and an
// audio extraction run that splits by chapter markers.
//
// The extraction run writes the final path of the main file to a per-run
// marker file through --print-to-file. That path is authoritative: yt-dlp's
// own filename restriction does not match the titles we sanitize ourselves.
package ytdlp
