// Package scanner walks directory trees and describes the files worth
// indexing.
//
// Hidden files and directories, OS artifacts such as thumbs.db or .DS_Store,
// editor and backup temp files, and cloud placeholders whose content is not on
// local disk are skipped. Each Entry carries file facts, a category, and the
// EXIF capture date for JPEG and TIFF images.
package scanner
