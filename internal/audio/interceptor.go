package audio

import "fmt"

// BindingName is the page-global function chunks are delivered through.
const BindingName = "__clerkAudio"

// interceptorTemplate wraps RTCPeerConnection so every remote audio track
// is recorded with MediaRecorder. Each chunk leaves the page as base64 as
// soon as it is produced; nothing is kept in page memory.
const interceptorTemplate = `(() => {
  if (window.__clerkAudioInstalled) return;
  window.__clerkAudioInstalled = true;
  const binding = %q;
  const timeslice = %d;
  const tracks = [];
  let recording = false;

  const toBase64 = (buf) => {
    const bytes = new Uint8Array(buf);
    let bin = "";
    for (let i = 0; i < bytes.length; i += 0x8000) {
      bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
    }
    return btoa(bin);
  };

  const start = () => {
    const live = tracks.filter((t) => t.readyState === "live");
    if (live.length === 0) return;
    const stream = new MediaStream(live);
    try {
      const ctx = new AudioContext({ sampleRate: 48000 });
      ctx.createMediaStreamSource(stream).connect(ctx.destination);
      if (ctx.state === "suspended") ctx.resume();
    } catch (e) {}
    try {
      const el = document.createElement("audio");
      el.srcObject = stream;
      el.volume = 0.01;
      el.play().catch(() => {});
    } catch (e) {}

    let mimeType = "audio/webm;codecs=opus";
    if (!MediaRecorder.isTypeSupported(mimeType)) mimeType = "audio/webm";
    try {
      const recorder = new MediaRecorder(stream, { mimeType });
      recorder.ondataavailable = (e) => {
        if (!e.data || e.data.size === 0) return;
        e.data.arrayBuffer().then((buf) => window[binding](toBase64(buf)));
      };
      recorder.start(timeslice);
      recording = true;
      console.log("[clerk] audio recording started", mimeType);
    } catch (e) {
      console.log("[clerk] audio recorder failed", String(e));
    }
  };

  const Original = window.RTCPeerConnection;
  if (!Original) return;
  function Patched(...args) {
    const pc = new Original(...args);
    pc.addEventListener("track", (event) => {
      if (event.track.kind !== "audio") return;
      tracks.push(event.track);
      console.log("[clerk] audio track", event.track.id);
      if (!recording) start();
    });
    return pc;
  }
  Patched.prototype = Original.prototype;
  Object.setPrototypeOf(Patched, Original);
  window.RTCPeerConnection = Patched;
})();`

// InterceptorScript renders the init script that streams remote audio to
// binding in chunks of timesliceMS milliseconds.
func InterceptorScript(binding string, timesliceMS int) string {
	if binding == "" {
		binding = BindingName
	}
	if timesliceMS <= 0 {
		timesliceMS = 5000
	}
	return fmt.Sprintf(interceptorTemplate, binding, timesliceMS)
}
