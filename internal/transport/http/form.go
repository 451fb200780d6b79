package http

import (
	"net/http"
)

const formPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>AI Doctor with Vision and Voice</title>
<style>
body { font-family: sans-serif; max-width: 42rem; margin: 2rem auto; }
label { display: block; margin-top: 1rem; }
textarea { width: 100%; height: 8rem; }
</style>
</head>
<body>
<h1>AI Doctor with Vision and Voice</h1>
<p>Describe your symptoms in English, Hindi, Spanish or French. The answer is spoken back in your language.</p>
<form id="consult">
  <p>
    <button type="button" id="record">Record</button>
    <button type="button" id="stop" disabled>Stop</button>
    <span id="recstate"></span>
  </p>
  <label>Or upload a recording <input type="file" name="audio" accept="audio/*" capture></label>
  <label>Image <input type="file" name="image" accept="image/*"></label>
  <p><button type="submit">Consult</button></p>
</form>
<label>Transcript <textarea id="transcript" readonly></textarea></label>
<label>Diagnosis <textarea id="diagnosis" readonly></textarea></label>
<audio id="voice" controls></audio>
<script>
let recorder = null, chunks = [], recording = null;

function recordingName(type) {
  if (type.includes("ogg")) return "recording.ogg";
  if (type.includes("mp4")) return "recording.m4a";
  return "recording.webm";
}

document.getElementById("record").addEventListener("click", async () => {
  if (!navigator.mediaDevices || !window.MediaRecorder) { alert("Recording is not supported in this browser."); return; }
  const stream = await navigator.mediaDevices.getUserMedia({ audio: true });
  chunks = [];
  recorder = new MediaRecorder(stream);
  recorder.ondataavailable = (ev) => { if (ev.data.size > 0) chunks.push(ev.data); };
  recorder.onstop = () => {
    stream.getTracks().forEach((tr) => tr.stop());
    recording = new Blob(chunks, { type: recorder.mimeType || "audio/webm" });
    document.getElementById("recstate").textContent = "Recorded " + Math.round(recording.size / 1024) + " KB";
  };
  recorder.start();
  document.getElementById("record").disabled = true;
  document.getElementById("stop").disabled = false;
  document.getElementById("recstate").textContent = "Recording...";
});

document.getElementById("stop").addEventListener("click", () => {
  if (recorder && recorder.state !== "inactive") recorder.stop();
  document.getElementById("record").disabled = false;
  document.getElementById("stop").disabled = true;
});

document.getElementById("consult").addEventListener("submit", async (e) => {
  e.preventDefault();
  const body = new FormData(e.target);
  const picked = body.get("audio");
  if (recording && (!picked || picked.size === 0)) {
    body.set("audio", recording, recordingName(recording.type));
  }
  const resp = await fetch("/consult", { method: "POST", body: body });
  if (!resp.ok) { alert(await resp.text()); return; }
  const res = await resp.json();
  document.getElementById("transcript").value = res.transcript;
  document.getElementById("diagnosis").value = res.diagnosis_text;
  if (res.voice_artifact_url) { document.getElementById("voice").src = res.voice_artifact_url; }
});
</script>
</body>
</html>
`

func serveForm(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(formPage))
}
