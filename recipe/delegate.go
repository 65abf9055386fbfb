package recipe

// Delegate is an optional third-party codec library ImageMagick can be
// compiled against. Its value is the recipe option that toggles it.
type Delegate string

const (
	Zlib     Delegate = "zlib"
	Bzlib    Delegate = "bzlib"
	Lzma     Delegate = "lzma"
	Lcms     Delegate = "lcms"
	OpenEXR  Delegate = "openexr"
	JPEG     Delegate = "jpeg"
	OpenJP2  Delegate = "openjp2"
	PNG      Delegate = "png"
	TIFF     Delegate = "tiff"
	WebP     Delegate = "webp"
	XML      Delegate = "xml"
	Freetype Delegate = "freetype"
)

type delegateInfo struct {
	configure string // --with-<configure>
	token     string // word in GetMagickDelegates()
	define    string // MSVC config.h switch
	msvc      bool   // buildable by the VisualMagick tree
	pkgconfig string // .pc file staged for configure
}

var delegates = map[Delegate]delegateInfo{
	Zlib:     {configure: "zlib", token: "zlib", define: "MAGICKCORE_ZLIB_DELEGATE", msvc: true, pkgconfig: "zlib"},
	Bzlib:    {configure: "bzlib", token: "bzlib", define: "MAGICKCORE_BZLIB_DELEGATE", msvc: true, pkgconfig: "bzip2"},
	Lzma:     {configure: "lzma", token: "lzma", define: "MAGICKCORE_LZMA_DELEGATE", msvc: true, pkgconfig: "liblzma"},
	Lcms:     {configure: "lcms", token: "lcms", define: "MAGICKCORE_LCMS_DELEGATE", msvc: true, pkgconfig: "lcms2"},
	OpenEXR:  {configure: "openexr", token: "exr", define: "MAGICKCORE_OPENEXR_DELEGATE", pkgconfig: "OpenEXR"},
	JPEG:     {configure: "jpeg", token: "jpeg", define: "MAGICKCORE_JPEG_DELEGATE", msvc: true, pkgconfig: "libjpeg"},
	OpenJP2:  {configure: "openjp2", token: "jp2", define: "MAGICKCORE_LIBOPENJP2_DELEGATE", msvc: true, pkgconfig: "libopenjp2"},
	PNG:      {configure: "png", token: "png", define: "MAGICKCORE_PNG_DELEGATE", msvc: true, pkgconfig: "libpng"},
	TIFF:     {configure: "tiff", token: "tiff", define: "MAGICKCORE_TIFF_DELEGATE", msvc: true, pkgconfig: "libtiff-4"},
	WebP:     {configure: "webp", token: "webp", define: "MAGICKCORE_WEBP_DELEGATE", msvc: true, pkgconfig: "libwebp"},
	XML:      {configure: "xml", token: "xml", define: "MAGICKCORE_XML_DELEGATE", msvc: true, pkgconfig: "libxml-2.0"},
	Freetype: {configure: "freetype", token: "freetype", define: "MAGICKCORE_FREETYPE_DELEGATE", msvc: true, pkgconfig: "freetype2"},
}

// allDelegates is the declaration order used for flags and listings.
var allDelegates = []Delegate{
	Zlib, Bzlib, Lzma, Lcms, OpenEXR, JPEG, OpenJP2, PNG, TIFF, WebP, XML, Freetype,
}

// Token returns the word GetMagickDelegates() prints when d is compiled in.
func (d Delegate) Token() string { return delegates[d].token }

// PkgConfig returns the pkg-config module name of d's library.
func (d Delegate) PkgConfig() string { return delegates[d].pkgconfig }

// MSVCBuildable reports whether the VisualMagick tree can compile d.
func (d Delegate) MSVCBuildable() bool { return delegates[d].msvc }
