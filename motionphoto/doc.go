// Package motionphoto locates video payloads that accompany still photographs.
//
// Google and Samsung cameras embed a short MP4 clip after the image data in
// the same file ("motion photo"). Apple stores the clip next to the picture
// as a sibling .MOV with the same basename ("live photo").
//
// # Embedded payloads
//
// Detect inspects the complete image bytes together with any EXIF fields the
// caller has already extracted:
//
//  1. MotionPhoto / MicroVideo flags are read from EXIF and from the XMP packet
//     in the first 512 KiB of the file.
//  2. MicroVideoOffset hints become offset candidates. Without a flag and without
//     a candidate the image is not examined further.
//  3. Each candidate is tried as an absolute offset and as a distance from the
//     end of the file. An interpretation is accepted when at least 8 KiB remain
//     and "ftyp" appears within the first 32 bytes of the remainder.
//  4. Otherwise the trailing 8 MiB are scanned for "ftyp"; the box starts four
//     bytes earlier.
//
// Detect never fails. Anything it cannot resolve, including malformed input,
// yields nil.
//
// # Sidecar videos
//
// FindLivePhotoVideo and IsSidecarVideo pair images with sibling video keys in a
// storage listing, case-insensitively.
package motionphoto
