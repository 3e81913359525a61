package scanner

// Namespaces whose import, or the import of anything nested under them,
// rejects a script.
var disallowedNamespaces = []string{
	"System.IO",
	"System.Net",
	"System.Reflection",
	"System.Diagnostics",
	"System.Threading",
	"System.Runtime.InteropServices",
	"System.Security",
	"System.CodeDom",
	"System.Xml.Serialization",
	"Microsoft.CSharp",
	"System.Runtime.CompilerServices",
	"System.AppDomain",
}

// Type and member names matched as whole words anywhere in the source.
var disallowedTypes = []string{
	"File",
	"FileStream",
	"FileInfo",
	"Directory",
	"DirectoryInfo",
	"Path",
	"StreamWriter",
	"StreamReader",
	"BinaryWriter",
	"BinaryReader",
	"FileSystemWatcher",
	"DriveInfo",
	"Process",
	"ProcessStartInfo",
	"Thread",
	"Task",
	"WebClient",
	"HttpClient",
	"Socket",
	"TcpClient",
	"UdpClient",
	"Assembly",
	"Type.GetType",
	"Activator.CreateInstance",
	"AppDomain",
	"DllImport",
	"UnmanagedCode",
	"Registry",
	"RegistryKey",
	"Environment.Exit",
	"Application.Quit",
}

// Case-insensitive patterns, checked in order. A match is reported as the
// pattern text so reviewers can see which rule fired.
var disallowedPatterns = []string{
	`\bextern\b`,
	`\bunsafe\b`,
	`DllImport`,
	`Marshal\.`,
	`GCHandle`,
	`Pointer`,
	`fixed\s*\(`,
	`stackalloc`,
	`System\.Runtime\.CompilerServices`,
	`__makeref`,
	`__reftype`,
	`__refvalue`,
	`Activator\.CreateInstance`,
	`Assembly\.Load`,
	`Type\.GetType`,
	`\.Invoke\(`,
	`\.GetMethod\(`,
	`\.GetField\(`,
	`\.GetProperty\(`,
	`System\.CodeDom`,
	`CSharpCodeProvider`,
	`CompileAssembly`,
	`Environment\.Exit`,
	`Application\.Quit`,
	`System\.Diagnostics\.Process`,
	`\.Start\(\)`,
	`cmd\.exe`,
	`powershell`,
	`/bin/`,
	`PlayerPrefs\.DeleteAll`,
	`Resources\.UnloadUnusedAssets`,
	`System\.GC\.Collect`,
}

const (
	// a quoted run of 50+ base64 alphabet characters with optional padding
	base64Literal = `"[A-Za-z0-9+/]{50,}={0,2}"`
	// ten or more chained + "literal" pieces
	concatChain = `(\+\s*"[^"]*"\s*){10,}`
	// a hex byte followed by at least twenty more
	hexByteRun = `0x[0-9A-Fa-f]{2}(\s*,\s*0x[0-9A-Fa-f]{2}){20,}`
)
