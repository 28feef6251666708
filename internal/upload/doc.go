// Package upload stores files posted by the admin UI under the uploads
// directory, served back at /uploads/<name>.
//
// Files are checked for size and sniffed content type before they touch the
// disk. JPEG and PNG images can be re-encoded as a smaller JPEG, downscaled
// to a maximum width; if that fails or does not save space the original bytes
// are kept. Stored files are never removed by the service.
package upload
